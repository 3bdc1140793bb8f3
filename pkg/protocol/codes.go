package protocol

import (
	"net/http"
	"strconv"
)

// Code is a close code. WebSocket sessions send it as the close status;
// HTTP sessions map it to a status with HTTPStatus.
type Code int

const (
	CodeOK                  Code = 4000
	CodeInvalidChannel      Code = 4010
	CodeStorageRead         Code = 4011
	CodePublicChannelNeeded Code = 4012
	CodeMalformedRequest    Code = 4013
	CodeCommandNotAllowed   Code = 4014
	CodeUnknownCommand      Code = 4015
	CodeTooManyMessages     Code = 4016
	CodeNoChannels          Code = 4017
	CodeTooManyChannels     Code = 4018
	CodeInvalidChannelID    Code = 4019
	CodePrivateNotAllowed   Code = 4020
	CodeInvalidSignature    Code = 4021
	CodeTooManyConnections  Code = 4029
)

// Reason returns the default reason text of a code.
func (c Code) Reason() string {
	switch c {
	case CodeInvalidChannel:
		return "Wrong Channel Id."
	case CodeStorageRead:
		return "Couldn't get last messages."
	case CodePublicChannelNeeded:
		return "Public Channel Id is Required."
	case CodeMalformedRequest:
		return "Wrong Request Data."
	case CodeCommandNotAllowed:
		return "Request command is not allowed."
	case CodeUnknownCommand:
		return "Wrong Request Command."
	case CodeTooManyMessages:
		return "Request exceeded the maximum number of messages."
	case CodeNoChannels:
		return "No channels found."
	case CodeTooManyChannels:
		return "Request exceeded the maximum number of channels."
	case CodeInvalidChannelID:
		return "Request has an invalid channel id."
	case CodePrivateNotAllowed:
		return "Private channel is not allowed."
	case CodeInvalidSignature:
		return "Channel has an invalid signature."
	case CodeTooManyConnections:
		return "Too many connections"
	default:
		return ""
	}
}

// HTTPStatus maps a close code to an HTTP status.
// Codes below 1000 are HTTP statuses already and pass through.
func (c Code) HTTPStatus() int {
	switch {
	case c < 1000:
		return int(c)
	case c == CodeOK:
		return http.StatusOK
	case c == CodeTooManyConnections:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// StatusText renders "<code>: <reason>", or "" without a reason.
func StatusText(c Code, reason string) string {
	if reason == "" {
		return ""
	}
	return strconv.Itoa(int(c)) + ": " + reason
}
