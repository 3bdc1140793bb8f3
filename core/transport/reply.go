package transport

import (
	"net/http"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

type reply struct {
	status int
	header http.Header
	body   []byte
}

func (r reply) write(w http.ResponseWriter) {
	for k, v := range r.header {
		w.Header()[k] = v
	}
	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		_, _ = w.Write(r.body)
	}
}

// oneShot is a session answered by exactly one HTTP response.
type oneShot struct {
	session
	replies chan reply
}

func newOneShot(kind adapter.Kind, info RequestInfo, opts []Option) oneShot {
	return oneShot{
		session: newSession(kind, info, opts),
		replies: make(chan reply, 1),
	}
}

// respond hands r to the waiting handler if the session is still active.
func (o *oneShot) respond(r reply) bool {
	if !o.deactivate() {
		return false
	}
	o.replies <- r
	return true
}

func (o *oneShot) dataReply(resp protocol.Response) reply {
	data, contentType := o.encode(resp)
	return reply{
		status: http.StatusOK,
		header: http.Header{
			"Content-Type":                []string{contentType},
			"Access-Control-Allow-Origin": []string{"*"},
		},
		body: data,
	}
}

func closeReply(code protocol.Code, reason string) reply {
	return reply{
		status: code.HTTPStatus(),
		header: http.Header{
			"Content-Type":                []string{"text/plain"},
			"Access-Control-Allow-Origin": []string{"*"},
		},
		body: []byte(protocol.StatusText(code, reason)),
	}
}
