package transport

import (
	"net/http"

	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/clientip"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

// Query parameters understood by every session.
const (
	ParamChannelID  = "CHANNEL_ID"
	ParamMessageID  = "mid"
	ParamBinaryMode = "binaryMode"
)

// RequestInfo is what a session knows about its client.
type RequestInfo struct {
	// Channels is empty when CHANNEL_ID is missing or any segment is invalid.
	Channels []channel.Channel
	// LastMessageID is the decoded mid parameter, nil when absent or malformed.
	LastMessageID []byte
	BinaryMode    bool
	IP            string
}

// ParseRequest extracts the RequestInfo of r. skipSign waives private
// channel signatures, as on the publisher listener.
func ParseRequest(r *http.Request, signer *channel.Signer, skipSign bool) RequestInfo {
	q := r.URL.Query()

	info := RequestInfo{
		BinaryMode: q.Get(ParamBinaryMode) == "true",
		IP:         clientip.GetIP(r),
	}

	if channels, err := signer.ParseList(q.Get(ParamChannelID), skipSign); err == nil {
		info.Channels = channels
	}

	if mid := q.Get(ParamMessageID); mid != "" {
		if id, err := protocol.ParseMessageID(mid); err == nil {
			info.LastMessageID = id
		}
	}

	return info
}

// Receivers lists a private receiver for every channel, followed by a
// public receiver when the channel has a public id.
func (i RequestInfo) Receivers() []protocol.Receiver {
	out := make([]protocol.Receiver, 0, len(i.Channels)*2)
	for _, ch := range i.Channels {
		out = append(out, protocol.Receiver{ID: ch.PrivateID, IsPrivate: true})
		if ch.HasPublicID() {
			out = append(out, protocol.Receiver{ID: ch.PublicID})
		}
	}
	return out
}

// PublicID returns the first public id among the channels, or nil.
func (i RequestInfo) PublicID() []byte {
	for _, ch := range i.Channels {
		if ch.HasPublicID() {
			return ch.PublicID
		}
	}
	return nil
}
