// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/url"
)

// ProxyRequest represents a client request to be forwarded to Baserow.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Path is the decoded wildcard remainder below the mount point, e.g. "rows/table/5/".
	Path  string
	Query url.Values
	Body  []byte
}

// ProxyResponse is a fully buffered upstream response. Body is nil for 204.
type ProxyResponse struct {
	StatusCode int
	Body       []byte
}
