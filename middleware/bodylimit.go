package middleware

import (
	"errors"
	"net/http"

	"github.com/uptrace/bunrouter"
)

// ErrBodyTooLarge is returned by the body reader once the limit is crossed.
var ErrBodyTooLarge = errors.New("request body too large")

// BodyLimit rejects requests whose declared length exceeds maxSize and caps
// the body reader of the others. Handlers that hit the cap get an error
// matching ErrBodyTooLarge through IsBodyTooLarge.
func BodyLimit(maxSize int64) bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			if maxSize <= 0 {
				return next(w, req)
			}
			if req.ContentLength > maxSize {
				WriteTooLarge(w)
				return nil
			}
			req.Body = http.MaxBytesReader(w, req.Body, maxSize)
			return next(w, req)
		}
	}
}

// IsBodyTooLarge reports whether err comes from a capped body.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, ErrBodyTooLarge)
}

// WriteTooLarge answers 413.
func WriteTooLarge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
}
