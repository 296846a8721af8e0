// Package erp implements the integration collaborator ports against the ERP core REST API.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxResponseSize caps ERP response bodies (10MB)
const maxResponseSize = 10 * 1024 * 1024

// listPageSize is the page size used when walking ERP list endpoints
const listPageSize = 100

// ErrNotFound is returned when the ERP has no such resource
var ErrNotFound = shared.NewDomainError("ERP_NOT_FOUND", "erp: resource not found")

// ErrUnavailable wraps transport failures and 5xx responses
var ErrUnavailable = errors.New("erp: service unavailable")

// envelope is the response shape of every ERP endpoint
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *envelopeError  `json:"error"`
	Meta    *envelopeMeta   `json:"meta"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelopeMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Client calls the ERP core on behalf of a tenant using a service token
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an ERP client from configuration
func NewClient(cfg config.ERPConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("erp: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.ServiceToken,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("erp")
	return c, nil
}

// call performs a request for a tenant and decodes the envelope data into out.
// extra headers are applied after the defaults.
func (c *Client) call(ctx context.Context, tenantID uuid.UUID, method, path string, in, out any, extra http.Header) (*envelopeMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("erp: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("erp: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID.String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range extra {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	c.logger.Debug("ERP call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// service token rejections stay retryable
		return nil, fmt.Errorf("%w: service token rejected (HTTP %d)", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		if decodeErr == nil && env.Error != nil {
			return nil, shared.NewDomainError(env.Error.Code, "erp: "+env.Error.Message)
		}
		return nil, shared.NewDomainError("ERP_REJECTED", fmt.Sprintf("erp: request rejected with HTTP %d", resp.StatusCode))
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("erp: decode response: %w", decodeErr)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, shared.NewDomainError(env.Error.Code, "erp: "+env.Error.Message)
		}
		return nil, shared.NewDomainError("ERP_REJECTED", "erp: unsuccessful response")
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("erp: decode data: %w", err)
		}
	}
	return env.Meta, nil
}

// hasMore reports whether another page follows the one just read
func hasMore(meta *envelopeMeta, page, got int) bool {
	if got < listPageSize {
		return false
	}
	if meta == nil {
		return got == listPageSize
	}
	return int64(page*listPageSize) < meta.Total
}
