package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	// Timeout bounds the whole request including body read. Default 30s.
	Timeout time.Duration
	// MaxRedirects caps redirect following. Zero keeps the stdlib default
	// chain of 10; a negative value disables following entirely and hands
	// back the redirect response itself.
	MaxRedirects int
	UseCookieJar bool
	// Proxy routes requests through the given egress. Only applied when
	// Transport is nil; a custom Transport owns its own dialing.
	Proxy *url.URL
	// Transport replaces the default transport, e.g. for uTLS fingerprinting.
	Transport http.RoundTripper
}

// Client wraps a standard http.Client to provide configurable timeouts,
// redirect policies, cookie management and egress selection.
type Client struct {
	*http.Client
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	switch {
	case cfg.MaxRedirects < 0:
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	case cfg.MaxRedirects > 0:
		max := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return fmt.Errorf("stopped after %d redirects", max)
			}
			return nil
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.Jar = jar
	}

	switch {
	case cfg.Transport != nil:
		c.Transport = cfg.Transport
	case cfg.Proxy != nil:
		c.Transport = &http.Transport{Proxy: http.ProxyURL(cfg.Proxy)}
	}

	return &Client{Client: c}, nil
}

// Do executes an HTTP request under the provided context. The context
// controls cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}

	// Always clone the request with the provided context
	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get issues a GET for rawURL under ctx.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	return c.Do(ctx, req)
}
