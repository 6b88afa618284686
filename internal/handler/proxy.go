package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"baserow-proxy-go/internal/model"
	"baserow-proxy-go/internal/service"
)

// Client-visible error messages. Details stay in the server log.
const (
	msgNotConfigured = "Server configuration error"
	msgInvalidBody   = "Invalid JSON body"
	msgProxyFailed   = "Failed to proxy request to Baserow"
)

// ProxyHandler forwards CRM requests to the upstream Baserow API.
type ProxyHandler struct {
	service *service.ProxyService
	creds   service.CredentialSource
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, creds service.CredentialSource, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		creds:   creds,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to Baserow and relays status and JSON body.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		// BodyLimit surfaces as an *echo.HTTPError (413); let echo render it.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return h.mapError(c, err)
	}

	segment, err := wildcardPath(c)
	if err != nil {
		return h.mapError(c, err)
	}

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Path:   segment,
		Query:  req.URL.Query(),
		Body:   body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	if resp.Body == nil {
		return c.NoContent(resp.StatusCode)
	}
	return c.JSONBlob(resp.StatusCode, resp.Body)
}

// wildcardPath returns the decoded catch-all segment. echo routes on RawPath
// when the request has one, and the param then keeps its escapes.
func wildcardPath(c echo.Context) (string, error) {
	p := c.Param("*")
	if c.Request().URL.RawPath == "" {
		return p, nil
	}
	return url.PathUnescape(p)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrInvalidRequestBody) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msgInvalidBody})
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err, h.creds.Current().Token),
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)

	if errors.Is(err, service.ErrNotConfigured) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": msgNotConfigured})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": msgProxyFailed})
}

// sanitizeError redacts the Baserow token from error messages before they are logged.
func sanitizeError(err error, token string) string {
	msg := err.Error()
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "[REDACTED]")
}
