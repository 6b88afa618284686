// Package client provides the upstream HTTP client for the Baserow REST API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"baserow-proxy-go/internal/config"
	"baserow-proxy-go/internal/metrics"
	"baserow-proxy-go/internal/model"
)

// ErrResponseTooLarge is returned when the upstream body exceeds proxy.response_max_bytes.
var ErrResponseTooLarge = errors.New("upstream response exceeds size limit")

// BaserowClient sends requests to the upstream Baserow API.
type BaserowClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxBody    int64
}

// NewBaserowClient creates a BaserowClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBaserowClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BaserowClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BaserowClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "baserow_client"),
		metrics: m,
		maxBody: cfg.Proxy.ResponseMaxBytes,
	}
}

// Do executes one request against Baserow and returns the buffered response.
// The context is the inbound request's, so the hosting server's lifecycle
// decides when an in-flight call is abandoned.
func (c *BaserowClient) Do(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	label := metrics.NormalizeMethod(method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(label).Observe(duration)
	}
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()
	}

	data, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

// readBody reads at most maxBody bytes; a zero limit means unlimited.
func (c *BaserowClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, c.maxBody)
	}
	return data, nil
}
