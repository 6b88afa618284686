// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"baserow-proxy-go/internal/config"
	"baserow-proxy-go/internal/metrics"
	"baserow-proxy-go/internal/model"
)

var (
	// ErrNotConfigured is returned when the Baserow base URL or token is missing.
	ErrNotConfigured = errors.New("baserow upstream not configured")

	// ErrInvalidRequestBody is returned when a body-carrying request is not JSON.
	ErrInvalidRequestBody = errors.New("request body is not valid JSON")

	// ErrInvalidUpstreamBody is returned when Baserow answers with a body that is not JSON.
	ErrInvalidUpstreamBody = errors.New("upstream response body is not valid JSON")
)

const (
	// apiPrefix is prepended to every forwarded path.
	apiPrefix = "/api/database"

	// routingParam carries the catch-all path in some routers and is never forwarded.
	routingParam = "path"

	authScheme = "Token "
	userAgent  = "baserow-proxy-go/1.0"
)

// Upstream executes a single call against Baserow.
type Upstream interface {
	Do(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error)
}

// CredentialSource returns the credentials in effect for the current request.
type CredentialSource interface {
	Current() config.Credentials
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	upstream Upstream
	creds    CredentialSource
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService. The metrics parameter may be nil.
func NewProxyService(up Upstream, creds CredentialSource, m *metrics.Metrics, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		upstream: up,
		creds:    creds,
		metrics:  m,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to Baserow and returns the relayed response.
//
// Credentials are checked before anything else; when they are incomplete
// ErrNotConfigured is returned, naming the missing fields, and no upstream
// call is made. Errors are returned unlogged; the caller logs them once. Inbound headers
// are never forwarded. A 204 from Baserow comes back with a nil body; any other
// status is returned as-is provided its body is JSON.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	creds := s.creds.Current()
	if !creds.Complete() {
		s.metrics.RecordError(metrics.ErrorKindConfig)
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missingCredentials(creds), ","))
	}

	var body io.Reader
	if sendsBody(pr.Method) && len(pr.Body) > 0 {
		if !json.Valid(pr.Body) {
			s.metrics.RecordError(metrics.ErrorKindInvalidBody)
			return nil, ErrInvalidRequestBody
		}
		body = bytes.NewReader(pr.Body)
	}

	upstreamURL, err := buildUpstreamURL(creds.BaseURL, pr.Path, pr.Query)
	if err != nil {
		s.metrics.RecordError(metrics.ErrorKindConfig)
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.upstream.Do(pr.Ctx, pr.Method, upstreamURL, upstreamHeaders(creds.Token), body)
	if err != nil {
		s.metrics.RecordError(metrics.ErrorKindUpstream)
		return nil, fmt.Errorf("forward to baserow: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent || (pr.Method == http.MethodHead && len(resp.Body) == 0) {
		return &model.ProxyResponse{StatusCode: resp.StatusCode}, nil
	}

	if !json.Valid(resp.Body) {
		s.metrics.RecordError(metrics.ErrorKindUpstream)
		return nil, fmt.Errorf("%w: status %d, %d bytes", ErrInvalidUpstreamBody, resp.StatusCode, len(resp.Body))
	}

	return resp, nil
}

// sendsBody reports whether a body may be forwarded for method.
func sendsBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// buildUpstreamURL joins base, the API prefix and the wildcard segment, and
// attaches the forwardable query parameters.
func buildUpstreamURL(base, segment string, query url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse baserow base url: %w", err)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + apiPrefix + "/" + strings.TrimPrefix(segment, "/")
	u.RawPath = ""
	u.RawQuery = forwardQuery(query).Encode()

	return u.String(), nil
}

// forwardQuery drops the routing parameter and collapses multi-valued keys to
// their first value.
func forwardQuery(src url.Values) url.Values {
	dst := make(url.Values, len(src))
	for key, vals := range src {
		if key == routingParam || len(vals) == 0 {
			continue
		}
		dst.Set(key, vals[0])
	}
	return dst
}

// upstreamHeaders builds the complete outbound header set.
func upstreamHeaders(token string) http.Header {
	h := make(http.Header, 3)
	h.Set("Authorization", authScheme+token)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	return h
}

func missingCredentials(c config.Credentials) []string {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.Token == "" {
		missing = append(missing, "token")
	}
	return missing
}
