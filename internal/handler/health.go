package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"baserow-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	creds   service.CredentialSource
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(creds service.CredentialSource, v Version) *HealthHandler {
	return &HealthHandler{creds: creds, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version and whether Baserow credentials are present.
// It deliberately says nothing about which value is missing or where upstream lives.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             string(h.version),
		"upstream_configured": h.creds.Current().Complete(),
	})
}
