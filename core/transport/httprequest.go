package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

// HTTPRequest is a one-shot session: the first Send or Close is the reply,
// everything after it is dropped.
type HTTPRequest struct {
	oneShot
}

var _ Session = (*HTTPRequest)(nil)

// NewHTTPRequest creates a one-shot session for info.
func NewHTTPRequest(info RequestInfo, opts ...Option) *HTTPRequest {
	return &HTTPRequest{oneShot: newOneShot(adapter.KindHTTP, info, opts)}
}

// Send replies 200 with resp.
func (h *HTTPRequest) Send(resp protocol.Response) {
	if !h.IsActive() {
		return
	}
	h.respond(h.dataReply(resp))
}

// Close replies with the HTTP status of code.
func (h *HTTPRequest) Close(code protocol.Code, reason string) {
	h.respond(closeReply(code, reason))
}

// Wait blocks until the request is answered and writes the reply to w.
// A request left unanswered for the request timeout gets 504.
func (h *HTTPRequest) Wait(ctx context.Context, w http.ResponseWriter) {
	timer := time.NewTimer(h.opts.requestTimeout)
	defer timer.Stop()

	select {
	case r := <-h.replies:
		r.write(w)
	case <-timer.C:
		if h.deactivate() {
			closeReply(http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)).write(w)
			return
		}
		(<-h.replies).write(w)
	case <-ctx.Done():
		h.deactivate()
	}
}
