package middleware_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/middleware"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevel(-4))

	r := bunrouter.New(bunrouter.Use(
		middleware.RequestID(),
		middleware.ClientIP(),
		middleware.Logging(log),
	))
	r.GET("/ok", func(w http.ResponseWriter, req bunrouter.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	r.GET("/bad", func(w http.ResponseWriter, req bunrouter.Request) error {
		http.Error(w, "nope", http.StatusBadRequest)
		return nil
	})
	r.GET("/fail", func(w http.ResponseWriter, req bunrouter.Request) error {
		return errors.New("boom")
	})

	for _, path := range []string{"/ok", "/bad", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	dec := json.NewDecoder(&buf)
	var records []map[string]any
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		records = append(records, rec)
	}
	require.Len(t, records, 3)

	assert.Equal(t, "INFO", records[0]["level"])
	assert.Equal(t, float64(http.StatusNoContent), records[0]["status_code"])
	assert.NotEmpty(t, records[0]["request_id"])
	assert.Equal(t, "192.0.2.1", records[0]["client_ip"])

	assert.Equal(t, "WARN", records[1]["level"])
	assert.Equal(t, "ERROR", records[2]["level"])
	assert.Equal(t, "boom", records[2]["error"])
}
