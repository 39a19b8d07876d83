package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestTenantExtractor(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header wins", "acme", "other", "acme"},
		{"query fallback", "", "acme", "acme"},
		{"default", "", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TenantExtractor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetTenantID(r.Context())
			}))

			req := httptest.NewRequest("GET", "/?tenant="+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("X-Tenant-Id", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("tenant = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggerCarriesTenantAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	// Same chain order as the router: RequestID, then TenantExtractor,
	// then Logger.
	h := chimw.RequestID(TenantExtractor(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("ok"))
	}))))

	req := httptest.NewRequest("GET", "/api/v1/agents", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if !strings.Contains(line, `"tenant":"acme"`) {
		t.Errorf("log line missing tenant: %s", line)
	}
	if !strings.Contains(line, `"request_id":`) || strings.Contains(line, `"request_id":""`) {
		t.Errorf("log line missing request id: %s", line)
	}
	if !strings.Contains(line, `"status":418`) {
		t.Errorf("log line missing status: %s", line)
	}
	if !strings.Contains(line, `"path":"/api/v1/agents"`) {
		t.Errorf("log line missing path: %s", line)
	}
}
