package restclient

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRetries = 3

// Client is a rate-limited JSON client with retry on throttling and server errors.
type Client struct {
	client      *resty.Client
	logger      *zap.Logger
	limiter     *rate.Limiter
	backoffBase time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithLimiter replaces the request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBackoffBase sets the first retry delay; later retries double it.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) { c.backoffBase = d }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.SetTimeout(d) }
}

// New creates a client for baseURL. ratePerSec and burst configure the limiter.
func New(baseURL string, ratePerSec float64, burst int, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		client:      resty.New().SetBaseURL(baseURL).SetHeader("Accept", "application/json"),
		logger:      logger.Named("rest-client").With(zap.String("base_url", baseURL)),
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), burst),
		backoffBase: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

// Get issues a GET with query parameters and decodes the JSON body into result.
func (c *Client) Get(ctx context.Context, path string, query map[string]string, result any) error {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		ForceContentType("application/json").
		SetResult(result)
	if _, err := c.doRequest(ctx, http.MethodGet, path, req); err != nil {
		return err
	}
	return nil
}

// Post issues a JSON POST and decodes the JSON response into result.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		ForceContentType("application/json").
		SetResult(result)
	if _, err := c.doRequest(ctx, http.MethodPost, path, req); err != nil {
		return err
	}
	return nil
}

// doRequest executes req with rate limiting and up to three attempts.
// 429 and 418 honour Retry-After; 5xx and transport errors back off exponentially.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil && resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= http.StatusInternalServerError {
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			err = fmt.Errorf("server responded %s", resp.Status())
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			shouldRetry = true
		}

		if i == maxRetries-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoffBase
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
