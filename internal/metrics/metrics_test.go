package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New("/api/baserow")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("GET", "200", "/api/baserow").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "baserow_proxy_http_requests_total" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected baserow_proxy_http_requests_total in gathered metrics")
	}
}

func TestRecordError(t *testing.T) {
	m := New()
	m.RecordError(ErrorKindConfig)
	m.RecordError(ErrorKindConfig)
	m.RecordError(ErrorKindUpstream)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "baserow_proxy_errors_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "kind" {
					got[lp.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if got[ErrorKindConfig] != 2 {
		t.Errorf("errors_total{kind=config} = %v, want 2", got[ErrorKindConfig])
	}
	if got[ErrorKindUpstream] != 1 {
		t.Errorf("errors_total{kind=upstream} = %v, want 1", got[ErrorKindUpstream])
	}
}

func TestRecordError_NilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordError(ErrorKindConfig) // must not panic
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"X-CUSTOM", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	m := New("/api/baserow", "/healthz", "/proxy/status", "/metrics")

	tests := []struct {
		path string
		want string
	}{
		{"/api/baserow/database/rows/table/5/", "/api/baserow"},
		{"/api/baserow", "/api/baserow"},
		{"/api/baserowx", "other"},
		{"/healthz", "/healthz"},
		{"/proxy/status", "/proxy/status"},
		{"/metrics", "/metrics"},
		{"/unknown", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := m.NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
