package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	h := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("conflict"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/orders/3/review", nil))

	entries := logs.FilterMessage("request served").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/api/orders/3/review", fields["uri"])
	assert.EqualValues(t, http.StatusConflict, fields["status"])
	assert.EqualValues(t, len("conflict"), fields["size"])
}

func TestLogger_ServerErrorIsWarn(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/listings/1", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestLogger_ImplicitOK(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, http.StatusOK, logs.All()[0].ContextMap()["status"])
}
