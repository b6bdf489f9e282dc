package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lobbies", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if got := entries[0].Data["status"]; got != http.StatusTeapot {
		t.Errorf("logged status = %v", got)
	}
	if got := entries[0].Data["path"]; got != "/lobbies" {
		t.Errorf("logged path = %v", got)
	}
}

func TestLogMiddlewareDefaultsTo200(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // implicit 200
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := hook.LastEntry().Data["status"]; got != http.StatusOK {
		t.Errorf("logged status = %v", got)
	}
}
