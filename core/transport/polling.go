package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const (
	headerLastMessageID = "Last-Message-Id"
	expiredDate         = "Thu, 01 Jan 1973 11:11:01 GMT"
)

// Polling is a long-poll session. It is answered by the first response,
// the first close or the poll timeout, whichever comes first.
type Polling struct {
	oneShot
}

var _ Session = (*Polling)(nil)

// NewPolling creates a long-poll session for info.
func NewPolling(info RequestInfo, opts ...Option) *Polling {
	return &Polling{oneShot: newOneShot(adapter.KindPolling, info, opts)}
}

// Send answers the poll with resp.
func (p *Polling) Send(resp protocol.Response) {
	if !p.IsActive() {
		return
	}
	p.respond(p.dataReply(resp))
}

// Close answers the poll with the HTTP status of code.
func (p *Polling) Close(code protocol.Code, reason string) {
	r := closeReply(code, reason)
	r.header.Set("Access-Control-Expose-Headers", headerLastMessageID)
	p.respond(r)
}

// Wait blocks until the poll is answered or times out and writes the reply
// to w. It must run on the handler goroutine.
func (p *Polling) Wait(ctx context.Context, w http.ResponseWriter) {
	timer := time.NewTimer(p.opts.pollTimeout)
	defer timer.Stop()

	select {
	case r := <-p.replies:
		r.write(w)
	case <-timer.C:
		if p.deactivate() {
			p.notModified(ctx).write(w)
			return
		}
		(<-p.replies).write(w)
	case <-ctx.Done():
		p.deactivate()
	}
}

func (p *Polling) notModified(ctx context.Context) reply {
	return reply{
		status: http.StatusNotModified,
		header: http.Header{
			headerLastMessageID:             []string{p.lastMessageID(ctx)},
			"Expires":                       []string{expiredDate},
			"Access-Control-Allow-Origin":   []string{"*"},
			"Access-Control-Expose-Headers": []string{headerLastMessageID},
		},
	}
}

// lastMessageID returns the newest stored id of the session channels,
// falling back to the id the client sent.
func (p *Polling) lastMessageID(ctx context.Context) string {
	if p.opts.lastMessage != nil && len(p.info.Channels) > 0 {
		msg, err := p.opts.lastMessage(ctx, p.info.Receivers())
		switch {
		case err != nil:
			p.opts.logger.ErrorContext(ctx, "failed to get last message", logger.Error(err))
		case msg != nil:
			return protocol.FormatMessageID(msg.ID)
		}
	}
	if len(p.info.LastMessageID) > 0 {
		return protocol.FormatMessageID(p.info.LastMessageID)
	}
	return ""
}
