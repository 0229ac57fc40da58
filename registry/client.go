// Package registry provides access to the upstream court registry: a
// hardened HTTP client for document retrieval and discovery of new or
// changed documents from the registry's listings.
package registry

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360studio/courtstream/model"
)

// FetchResult contains the result of fetching a document.
type FetchResult struct {
	Body         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
	StatusCode   int
}

// NotModified reports whether the fetch was short-circuited by a
// conditional request (HTTP 304).
func (r *FetchResult) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// ClientConfig holds settings for the registry client.
type ClientConfig struct {
	// Timeout bounds a single fetch end to end
	Timeout time.Duration
	// UserAgent identifies outbound requests
	UserAgent string
	// MaxContentSize caps the response body size in bytes
	MaxContentSize int64
	// RateLimit is the maximum request rate in requests per second (0 = unlimited)
	RateLimit float64
	// Burst is the burst allowance on top of RateLimit
	Burst int
	// SpoolRoot enables file:// URLs confined to this directory (empty = disabled)
	SpoolRoot string
}

// DefaultClientConfig returns sensible client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        30 * time.Second,
		UserAgent:      "courtstream/0.1",
		MaxContentSize: 10 * 1024 * 1024,
		RateLimit:      2,
		Burst:          4,
	}
}

// Client fetches documents from the registry with security checks and
// rate limiting.
type Client struct {
	client         *http.Client
	limiter        *rate.Limiter
	userAgent      string
	maxContentSize int64
	spoolRoot      string
}

// NewClient creates a new registry client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.MaxContentSize <= 0 {
		cfg.MaxContentSize = DefaultClientConfig().MaxContentSize
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	spoolRoot := cfg.SpoolRoot
	if spoolRoot != "" {
		if abs, err := filepath.Abs(spoolRoot); err == nil {
			spoolRoot = abs
		}
	}

	return &Client{
		client: &http.Client{
			Transport: newSafeTransport(cfg.Timeout),
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				// Validate redirect target is not to private IP
				if err := ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		limiter:        limiter,
		userAgent:      cfg.UserAgent,
		maxContentSize: cfg.MaxContentSize,
		spoolRoot:      spoolRoot,
	}
}

// newSafeTransport builds a transport whose dialer re-validates resolved
// IPs, preventing DNS rebinding from reaching private addresses.
func newSafeTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}

		for _, ipAddr := range ips {
			if IsPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ipAddr.IP)
			}
		}

		for _, ipAddr := range ips {
			connAddr := net.JoinHostPort(ipAddr.IP.String(), port)
			conn, err := dialer.DialContext(ctx, network, connAddr)
			if err == nil {
				return conn, nil
			}
		}

		return nil, fmt.Errorf("failed to connect to any resolved IP")
	}

	return &http.Transport{
		DialContext:           safeDialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Fetch retrieves a document from the given URL.
func (c *Client) Fetch(ctx context.Context, urlStr string) (*FetchResult, error) {
	return c.FetchWithETag(ctx, urlStr, "")
}

// FetchWithETag retrieves a document with conditional fetch support.
// If etag is provided and the content has not changed, the result has
// StatusCode 304 and no body. Errors are classified: transient network
// conditions are retryable, missing documents and oversized or
// unsupported content are permanent.
func (c *Client) FetchWithETag(ctx context.Context, urlStr, etag string) (*FetchResult, error) {
	if strings.HasPrefix(urlStr, "file://") {
		return c.fetchFile(urlStr)
	}

	if err := ValidateURL(urlStr); err != nil {
		return nil, model.NewPermanentFetchError(err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, model.NewTransientNetworkError(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, model.NewPermanentFetchError(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.8,en;q=0.5")

	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, model.NewTransientNetworkError(fmt.Errorf("fetch: %w", err))
	}
	defer resp.Body.Close()

	result := &FetchResult{
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		StatusCode:  resp.StatusCode,
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			result.LastModified = t
		}
	}

	// Conditional fetch short-circuit
	if resp.StatusCode == http.StatusNotModified {
		return result, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}

	// Read body with size limit
	limitReader := io.LimitReader(resp.Body, c.maxContentSize+1)
	body, err := io.ReadAll(limitReader)
	if err != nil {
		return nil, model.NewTransientNetworkError(fmt.Errorf("read body: %w", err))
	}

	if int64(len(body)) > c.maxContentSize {
		return nil, model.NewPermanentFetchError(fmt.Errorf("content too large (exceeds %d bytes)", c.maxContentSize))
	}

	result.Body = body
	return result, nil
}

// classifyStatus maps an HTTP error status to the pipeline error taxonomy.
func classifyStatus(statusCode int) error {
	err := fmt.Errorf("HTTP %d: %s", statusCode, http.StatusText(statusCode))

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return model.NewTransientNetworkError(err)
	case statusCode >= 500:
		// Server errors are transient
		return model.NewTransientNetworkError(err)
	case statusCode == http.StatusNotFound, statusCode == http.StatusGone:
		// Missing documents will not appear on retry
		return model.NewPermanentFetchError(err)
	default:
		// Remaining client errors are permanent
		return model.NewPermanentFetchError(err)
	}
}

// fetchFile serves file:// URLs from the spool directory. Paths outside
// the spool root are rejected.
func (c *Client) fetchFile(urlStr string) (*FetchResult, error) {
	if c.spoolRoot == "" {
		return nil, model.NewPermanentFetchError(fmt.Errorf("file URLs are not enabled"))
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, model.NewPermanentFetchError(fmt.Errorf("invalid file URL: %w", err))
	}

	path := filepath.Clean(parsed.Path)
	if !filepath.IsAbs(path) {
		return nil, model.NewPermanentFetchError(fmt.Errorf("file URL must carry an absolute path"))
	}
	rel, err := filepath.Rel(c.spoolRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, model.NewPermanentFetchError(fmt.Errorf("path outside spool directory"))
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewPermanentFetchError(fmt.Errorf("spool file missing: %w", err))
		}
		return nil, model.NewTransientNetworkError(fmt.Errorf("read spool file: %w", err))
	}

	if int64(len(body)) > c.maxContentSize {
		return nil, model.NewPermanentFetchError(fmt.Errorf("content too large (exceeds %d bytes)", c.maxContentSize))
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	return &FetchResult{
		Body:        body,
		ContentType: contentType,
		StatusCode:  http.StatusOK,
	}, nil
}
