package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"baserow-proxy-go/internal/config"
)

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(staticCredentials{}, "test")
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name           string
		creds          config.Credentials
		wantConfigured bool
	}{
		{"configured", config.Credentials{BaseURL: "https://api.baserow.io", Token: "secret-token"}, true},
		{"token missing", config.Credentials{BaseURL: "https://api.baserow.io"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/proxy/status", http.NoBody)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := NewHealthHandler(staticCredentials(tt.creds), "1.2.3")
			if err := h.Status(c); err != nil {
				t.Fatalf("Status() error = %v", err)
			}

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}

			var body struct {
				Status     string `json:"status"`
				Version    string `json:"version"`
				Configured bool   `json:"upstream_configured"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Status != "ok" {
				t.Errorf("body.status = %q, want %q", body.Status, "ok")
			}
			if body.Version != "1.2.3" {
				t.Errorf("body.version = %q, want %q", body.Version, "1.2.3")
			}
			if body.Configured != tt.wantConfigured {
				t.Errorf("body.upstream_configured = %v, want %v", body.Configured, tt.wantConfigured)
			}
		})
	}
}
