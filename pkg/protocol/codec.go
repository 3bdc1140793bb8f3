package protocol

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MarshalRequestBatch encodes requests as a RequestBatch.
func MarshalRequestBatch(requests ...Request) []byte {
	var b []byte
	for _, r := range requests {
		b = appendMessage(b, 1, appendRequest(nil, r))
	}
	return b
}

// UnmarshalRequestBatch decodes a RequestBatch.
func UnmarshalRequestBatch(data []byte) ([]Request, error) {
	var requests []Request
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		return consumeMessage(typ, v, func(m []byte) error {
			r, err := decodeRequest(m)
			requests = append(requests, r)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// FirstRequest decodes a RequestBatch and returns its first request.
// The remaining requests are ignored.
func FirstRequest(data []byte) (Request, error) {
	requests, err := UnmarshalRequestBatch(data)
	if err != nil {
		return Request{}, err
	}
	if len(requests) == 0 {
		return Request{}, ErrEmptyBatch
	}
	return requests[0], nil
}

// MarshalResponseBatch encodes responses as a ResponseBatch.
func MarshalResponseBatch(responses ...Response) []byte {
	var b []byte
	for _, r := range responses {
		b = appendMessage(b, 1, appendResponse(nil, r))
	}
	return b
}

// UnmarshalResponseBatch decodes a ResponseBatch.
func UnmarshalResponseBatch(data []byte) ([]Response, error) {
	var responses []Response
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		return consumeMessage(typ, v, func(m []byte) error {
			r, err := decodeResponse(m)
			responses = append(responses, r)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// MarshalOutgoingMessage encodes a single OutgoingMessage, the stored form of a message.
func MarshalOutgoingMessage(m OutgoingMessage) []byte {
	return appendOutgoingMessage(nil, m)
}

// UnmarshalOutgoingMessage decodes a single OutgoingMessage.
func UnmarshalOutgoingMessage(data []byte) (OutgoingMessage, error) {
	return decodeOutgoingMessage(data)
}

// MarshalNotificationBatch wraps IPC messages into a NotificationBatch
// holding a single ipcMessages notification.
func MarshalNotificationBatch(messages ...IPCMessage) []byte {
	var ipc []byte
	for _, m := range messages {
		ipc = appendMessage(ipc, 1, appendIPCMessage(nil, m))
	}
	notification := appendMessage(nil, 1, ipc)
	return appendMessage(nil, 1, notification)
}

// UnmarshalNotificationBatch decodes a NotificationBatch and flattens its IPC messages.
func UnmarshalNotificationBatch(data []byte) ([]IPCMessage, error) {
	var messages []IPCMessage
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		// Notification
		return consumeMessage(typ, v, func(n []byte) error {
			return walk(n, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
				if num != 1 {
					return 0, nil
				}
				// IPCMessages
				return consumeMessage(typ, v, func(ipc []byte) error {
					return walk(ipc, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
						if num != 1 {
							return 0, nil
						}
						return consumeMessage(typ, v, func(m []byte) error {
							msg, err := decodeIPCMessage(m)
							messages = append(messages, msg)
							return err
						})
					})
				})
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func appendRequest(b []byte, r Request) []byte {
	switch r.Command {
	case CommandIncomingMessages:
		var inner []byte
		for _, m := range r.IncomingMessages {
			inner = appendMessage(inner, 1, appendIncomingMessage(nil, m))
		}
		b = appendMessage(b, 1, inner)
	case CommandChannelStats:
		var inner []byte
		for _, c := range r.ChannelStats {
			inner = appendMessage(inner, 1, appendReceiver(nil, c))
		}
		b = appendMessage(b, 2, inner)
	case CommandServerStats:
		b = appendMessage(b, 3, nil)
	}
	return b
}

func appendResponse(b []byte, r Response) []byte {
	switch r.Kind {
	case ResponseOutgoingMessages:
		var inner []byte
		for _, m := range r.OutgoingMessages {
			inner = appendMessage(inner, 1, appendOutgoingMessage(nil, m))
		}
		b = appendMessage(b, 1, inner)
	case ResponseChannelStats:
		var inner []byte
		for _, s := range r.ChannelStats {
			inner = appendMessage(inner, 1, appendChannelStats(nil, s))
		}
		b = appendMessage(b, 2, inner)
	case ResponseServerStats:
		b = appendMessage(b, 3, appendString(nil, 1, r.ServerStats))
	}
	return b
}

func appendReceiver(b []byte, r Receiver) []byte {
	b = appendBytes(b, 1, r.ID)
	b = appendBool(b, 2, r.IsPrivate)
	return appendBytes(b, 3, r.Signature)
}

func appendSender(b []byte, s Sender) []byte {
	b = appendVarint(b, 1, uint64(s.Type))
	return appendBytes(b, 2, s.ID)
}

func appendIncomingMessage(b []byte, m IncomingMessage) []byte {
	for _, r := range m.Receivers {
		b = appendMessage(b, 1, appendReceiver(nil, r))
	}
	if m.Sender != nil {
		b = appendMessage(b, 2, appendSender(nil, *m.Sender))
	}
	b = appendString(b, 3, m.Body)
	b = appendVarint(b, 4, uint64(m.Expiry))
	return appendString(b, 5, m.Type)
}

func appendOutgoingMessage(b []byte, m OutgoingMessage) []byte {
	b = appendBytes(b, 1, m.ID)
	b = appendString(b, 2, m.Body)
	b = appendVarint(b, 3, uint64(m.Expiry))
	if m.Created != 0 {
		b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, m.Created)
	}
	if m.Sender != nil {
		b = appendMessage(b, 5, appendSender(nil, *m.Sender))
	}
	return b
}

func appendChannelStats(b []byte, s ChannelStats) []byte {
	b = appendBytes(b, 1, s.ID)
	b = appendBool(b, 2, s.IsPrivate)
	return appendBool(b, 3, s.IsOnline)
}

func appendIPCMessage(b []byte, m IPCMessage) []byte {
	for _, r := range m.Receivers {
		b = appendMessage(b, 1, appendReceiver(nil, r))
	}
	if m.OutgoingMessage != nil {
		b = appendMessage(b, 2, appendOutgoingMessage(nil, *m.OutgoingMessage))
	}
	return appendBytes(b, 3, m.OutgoingMessageID)
}

func decodeRequest(data []byte) (Request, error) {
	var r Request
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			r.Command = CommandIncomingMessages
			return consumeRepeated(typ, v, func(m []byte) error {
				msg, err := decodeIncomingMessage(m)
				r.IncomingMessages = append(r.IncomingMessages, msg)
				return err
			})
		case 2:
			r.Command = CommandChannelStats
			return consumeRepeated(typ, v, func(m []byte) error {
				c, err := decodeReceiver(m)
				r.ChannelStats = append(r.ChannelStats, c)
				return err
			})
		case 3:
			r.Command = CommandServerStats
		default:
			if r.Command == CommandNone {
				r.Command = CommandUnknown
			}
		}
		return 0, nil
	})
	return r, err
}

func decodeResponse(data []byte) (Response, error) {
	var r Response
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			r.Kind = ResponseOutgoingMessages
			return consumeRepeated(typ, v, func(m []byte) error {
				msg, err := decodeOutgoingMessage(m)
				r.OutgoingMessages = append(r.OutgoingMessages, msg)
				return err
			})
		case 2:
			r.Kind = ResponseChannelStats
			return consumeRepeated(typ, v, func(m []byte) error {
				s, err := decodeChannelStats(m)
				r.ChannelStats = append(r.ChannelStats, s)
				return err
			})
		case 3:
			r.Kind = ResponseServerStats
			return consumeMessage(typ, v, func(m []byte) error {
				return walk(m, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
					if num == 1 {
						return consumeString(typ, v, &r.ServerStats), nil
					}
					return 0, nil
				})
			})
		}
		return 0, nil
	})
	return r, err
}

func decodeReceiver(data []byte) (Receiver, error) {
	var r Receiver
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, v, &r.ID), nil
		case 2:
			return consumeBool(typ, v, &r.IsPrivate), nil
		case 3:
			return consumeBytes(typ, v, &r.Signature), nil
		}
		return 0, nil
	})
	return r, err
}

func decodeSender(data []byte) (Sender, error) {
	var s Sender
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			var t uint64
			n := consumeVarint(typ, v, &t)
			s.Type = SenderType(t)
			return n, nil
		case 2:
			return consumeBytes(typ, v, &s.ID), nil
		}
		return 0, nil
	})
	return s, err
}

func decodeIncomingMessage(data []byte) (IncomingMessage, error) {
	var m IncomingMessage
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, v, func(b []byte) error {
				r, err := decodeReceiver(b)
				m.Receivers = append(m.Receivers, r)
				return err
			})
		case 2:
			return consumeMessage(typ, v, func(b []byte) error {
				s, err := decodeSender(b)
				m.Sender = &s
				return err
			})
		case 3:
			return consumeString(typ, v, &m.Body), nil
		case 4:
			var e uint64
			n := consumeVarint(typ, v, &e)
			m.Expiry = uint32(e)
			return n, nil
		case 5:
			return consumeString(typ, v, &m.Type), nil
		}
		return 0, nil
	})
	return m, err
}

func decodeOutgoingMessage(data []byte) (OutgoingMessage, error) {
	var m OutgoingMessage
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, v, &m.ID), nil
		case 2:
			return consumeString(typ, v, &m.Body), nil
		case 3:
			var e uint64
			n := consumeVarint(typ, v, &e)
			m.Expiry = uint32(e)
			return n, nil
		case 4:
			if typ != protowire.Fixed32Type {
				return 0, nil
			}
			c, n := protowire.ConsumeFixed32(v)
			m.Created = c
			return n, nil
		case 5:
			return consumeMessage(typ, v, func(b []byte) error {
				s, err := decodeSender(b)
				m.Sender = &s
				return err
			})
		}
		return 0, nil
	})
	return m, err
}

func decodeChannelStats(data []byte) (ChannelStats, error) {
	var s ChannelStats
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, v, &s.ID), nil
		case 2:
			return consumeBool(typ, v, &s.IsPrivate), nil
		case 3:
			return consumeBool(typ, v, &s.IsOnline), nil
		}
		return 0, nil
	})
	return s, err
}

func decodeIPCMessage(data []byte) (IPCMessage, error) {
	var m IPCMessage
	err := walk(data, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, v, func(b []byte) error {
				r, err := decodeReceiver(b)
				m.Receivers = append(m.Receivers, r)
				return err
			})
		case 2:
			return consumeMessage(typ, v, func(b []byte) error {
				msg, err := decodeOutgoingMessage(b)
				m.OutgoingMessage = &msg
				return err
			})
		case 3:
			return consumeBytes(typ, v, &m.OutgoingMessageID), nil
		}
		return 0, nil
	})
	return m, err
}

// walk iterates over the fields of an encoded message. fn returns the number of
// bytes of the field value it consumed, 0 to have the field skipped, or a negative
// protowire error code.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, data)
		}
		if m < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}

func consumeMessage(typ protowire.Type, data []byte, fn func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return n, nil
	}
	return n, fn(v)
}

// consumeRepeated decodes a wrapper message whose field 1 is a repeated message.
func consumeRepeated(typ protowire.Type, data []byte, fn func([]byte) error) (int, error) {
	return consumeMessage(typ, data, func(wrapper []byte) error {
		return walk(wrapper, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
			if num != 1 {
				return 0, nil
			}
			return consumeMessage(typ, v, fn)
		})
	})
}

func consumeBytes(typ protowire.Type, data []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(data)
	if n >= 0 && len(v) > 0 {
		*dst = bytes.Clone(v)
	}
	return n
}

func consumeString(typ protowire.Type, data []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(data)
	if n >= 0 {
		*dst = string(v)
	}
	return n
}

func consumeVarint(typ protowire.Type, data []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(data)
	if n >= 0 {
		*dst = v
	}
	return n
}

func consumeBool(typ protowire.Type, data []byte, dst *bool) int {
	var v uint64
	n := consumeVarint(typ, data, &v)
	if n > 0 {
		*dst = v != 0
	}
	return n
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}
