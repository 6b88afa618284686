package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"baserow-proxy-go/internal/config"
	"baserow-proxy-go/internal/metrics"
)

func testConfig(timeout int, maxBody int64) *config.Config {
	return &config.Config{
		Proxy: config.ProxyConfig{ResponseMaxBytes: maxBody},
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  timeout,
			IdleConnections: 10,
		},
	}
}

func TestBaserowClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token abc" {
			t.Errorf("Authorization = %q, want %q", got, "Token abc")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"Name":"Jansen BV"}` {
			t.Errorf("body = %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	c := NewBaserowClient(testConfig(10, 1024), logger, m)

	header := http.Header{"Authorization": {"Token abc"}}
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL+"/api/database/rows/table/5/", header, strings.NewReader(`{"Name":"Jansen BV"}`))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(resp.Body) != `{"id":7}` {
		t.Errorf("body = %q, want %q", resp.Body, `{"id":7}`)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "baserow_proxy_upstream_responses_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected baserow_proxy_upstream_responses_total to be recorded")
	}
}

func TestBaserowClient_Do_Error(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewBaserowClient(testConfig(1, 1024), logger, nil)

	_, err := c.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/nonexistent", http.Header{}, nil)
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
}

func TestBaserowClient_Do_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewBaserowClient(testConfig(30, 1024), logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, http.MethodGet, srv.URL+"/slow", http.Header{}, nil)
	if err == nil {
		t.Fatal("Do() expected error for canceled context, got nil")
	}
}

func TestBaserowClient_Do_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":["` + strings.Repeat("x", 64) + `"]}`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewBaserowClient(testConfig(10, 16), logger, nil)

	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, http.Header{}, nil)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("Do() error = %v, want ErrResponseTooLarge", err)
	}
}

func TestBaserowClient_Do_ExactLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewBaserowClient(testConfig(10, int64(len(`{"a":1}`))), logger, nil)

	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, http.Header{}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(resp.Body) != `{"a":1}` {
		t.Errorf("body = %q", resp.Body)
	}
}
