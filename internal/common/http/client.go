// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"

	"ria-search/internal/common/logger"
)

const userAgent = "ria-search"

// Client is the outbound HTTP client for third-party APIs. It satisfies the
// Do-only interface SDK clients accept.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	fields := map[string]interface{}{
		"method":     req.Method,
		"host":       req.URL.Host,
		"path":       req.URL.Path,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Warn("outbound request failed", fields)
		return nil, err
	}
	fields["status"] = resp.StatusCode
	if resp.StatusCode >= 500 {
		c.logger.Warn("outbound request returned server error", fields)
	} else {
		c.logger.Debug("outbound request completed", fields)
	}
	return resp, nil
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}
