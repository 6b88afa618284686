// Package handler contains the HTTP handlers and route table.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"baserow-proxy-go/internal/config"
	"baserow-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// m may be nil, in which case no metrics endpoint is exposed.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.Any(cfg.Proxy.MountPath, proxy.Handle)
	e.Any(cfg.Proxy.MountPath+"/*", proxy.Handle)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
