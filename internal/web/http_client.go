// Package web provides the shared HTTP session used by both the crawl
// and fetch stages. One Client is created per process and closed once
// every run has finished; workers only issue requests through it.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Options configures the shared HTTP session
type Options struct {
	Timeout         time.Duration     // Page request timeout
	DownloadTimeout time.Duration     // Archive transfer timeout (0=none)
	StallTimeout    time.Duration     // Longest wait for headers or the next body bytes (0=Timeout)
	UserAgent       string            // Used when RandomUserAgent is off
	RandomUserAgent bool              // Pick a browser User-Agent per request
	Proxy           string            // Optional proxy URL
	Headers         map[string]string // Extra headers sent with every request
}

// Client is the process-wide HTTP session
type Client struct {
	pages     *http.Client // bounded by Options.Timeout
	downloads *http.Client // bounded by Options.DownloadTimeout
	transport *http.Transport
	opts      Options
	agents    *AgentPool
}

// HTTPMetrics contains timing for a page request
type HTTPMetrics struct {
	TTFB         time.Duration // Time to First Byte
	DownloadTime time.Duration // Total download time
}

// Page is a fully read and decoded page response
type Page struct {
	URL         string
	FinalURL    string // After following redirects
	StatusCode  int
	ContentType string
	Body        []byte
	Metrics     HTTPMetrics
}

// NewClient creates the shared session. A cookie jar keeps cookies
// across requests the way a browser would.
func NewClient(opts Options) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if opts.StallTimeout <= 0 {
		opts.StallTimeout = opts.Timeout
	}

	proxy := http.ProxyFromEnvironment
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", opts.Proxy)
		}
		proxy = http.ProxyURL(proxyURL)
	}

	transport := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// A server that accepts but never answers fails the request
		ResponseHeaderTimeout: opts.StallTimeout,
		// Accept-Encoding is set explicitly, so bodies are decoded by hand
		DisableCompression: true,
	}

	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "packfetch/1.0"
	}

	return &Client{
		pages: &http.Client{
			Transport:     transport,
			Jar:           jar,
			Timeout:       opts.Timeout,
			CheckRedirect: checkRedirect,
		},
		downloads: &http.Client{
			Transport:     transport,
			Jar:           jar,
			Timeout:       opts.DownloadTimeout,
			CheckRedirect: checkRedirect,
		},
		transport: transport,
		opts:      opts,
		agents:    NewAgentPool(),
	}, nil
}

// newRequest builds a GET request carrying browser-like headers
func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrFetchFailed, err)
	}

	userAgent := c.opts.UserAgent
	if c.opts.RandomUserAgent {
		userAgent = c.agents.Pick()
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")

	for name, value := range c.opts.Headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

// Get fetches a page and returns its decoded body. Transport failures
// and non-2xx statuses both return an error wrapping ErrFetchFailed.
func (c *Client) Get(ctx context.Context, rawURL string) (*Page, error) {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start := time.Now()
	resp, err := c.pages.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, newStatusError(rawURL, resp)
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrFetchFailed, err)
	}

	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
		Metrics: HTTPMetrics{
			DownloadTime: time.Since(start),
		},
	}
	if !firstByte.IsZero() {
		page.Metrics.TTFB = firstByte.Sub(start)
	}

	return page, nil
}

// Open starts a streaming download. The caller owns and must close the
// returned body. When the server encoded the body it is decoded on the
// fly and ContentLength is reported as -1, mirroring net/http's own
// transparent decompression. A body that delivers nothing for
// StallTimeout fails with ErrStalled.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.downloads.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		cancel()
		return nil, newStatusError(rawURL, resp)
	}

	resp.Body = newStallGuard(resp.Body, c.opts.StallTimeout, cancel)

	encoding := resp.Header.Get("Content-Encoding")
	if encoding == "" || encoding == "identity" {
		return resp, nil
	}

	decoded, err := decodeBody(encoding, resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	resp.Body = &stackedBody{ReadCloser: decoded, raw: resp.Body}
	resp.ContentLength = -1
	resp.Uncompressed = true
	resp.Header.Del("Content-Length")
	resp.Header.Del("Content-Encoding")

	return resp, nil
}

// Close releases idle connections held by the session
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// stackedBody closes both the decoder and the underlying connection body
type stackedBody struct {
	io.ReadCloser
	raw io.Closer
}

func (b *stackedBody) Close() error {
	err := b.ReadCloser.Close()
	if rawErr := b.raw.Close(); err == nil {
		err = rawErr
	}
	return err
}

// stallGuard cancels the request when no bytes arrive for idle. Every
// successful read pushes the deadline out again.
type stallGuard struct {
	io.ReadCloser
	idle    time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	stalled atomic.Bool
}

func newStallGuard(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) io.ReadCloser {
	g := &stallGuard{ReadCloser: body, idle: idle, cancel: cancel}
	if idle > 0 {
		g.timer = time.AfterFunc(idle, func() {
			g.stalled.Store(true)
			cancel()
		})
	}
	return g
}

func (g *stallGuard) Read(p []byte) (int, error) {
	n, err := g.ReadCloser.Read(p)
	if g.timer != nil && n > 0 && err == nil {
		g.timer.Reset(g.idle)
	}
	if err != nil && err != io.EOF && g.stalled.Load() {
		return n, fmt.Errorf("%w: %w: no data for %s", ErrFetchFailed, ErrStalled, g.idle)
	}
	return n, err
}

func (g *stallGuard) Close() error {
	if g.timer != nil {
		g.timer.Stop()
	}
	err := g.ReadCloser.Close()
	g.cancel()
	return err
}
