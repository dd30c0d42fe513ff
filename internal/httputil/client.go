// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// NewClient returns an HTTP client with the given per-request timeout.
// A non-empty proxy URL (http://, https://, or socks5://) routes every
// request through that proxy.
func NewClient(timeout time.Duration, proxy string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// NewLimiter returns a limiter that admits one call per interval. A zero
// or negative interval admits every call immediately.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// SetHeaders applies the User-Agent and an optional mailto contact to req.
func SetHeaders(req *http.Request, userAgent, mailto string) {
	if userAgent != "" {
		if mailto != "" {
			userAgent = fmt.Sprintf("%s (mailto:%s)", userAgent, mailto)
		}
		req.Header.Set("User-Agent", userAgent)
	}
}
