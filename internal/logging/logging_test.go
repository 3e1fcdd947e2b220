package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("local", "debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("production", "loud").GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, New("production", "info").Formatter)
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := chimw.RequestID(RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/posts/x", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 404, entry.Data["status"])
	assert.Equal(t, "/api/posts/x", entry.Data["path"])
	assert.NotEmpty(t, entry.Data["request_id"])
}
