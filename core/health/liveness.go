package health

import (
	"net/http"

	"github.com/uptrace/bunrouter"
)

// Liveness indicates if the service process is running.
// Always returns "ALIVE" with 200 OK.
func Liveness(w http.ResponseWriter, _ bunrouter.Request) error {
	return text(w, http.StatusOK, "ALIVE")
}

func text(w http.ResponseWriter, status int, body string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write([]byte(body))
	return err
}
