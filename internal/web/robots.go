package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Robots caches robots.txt per host and answers allow checks
type Robots struct {
	client    *Client
	userAgent string
	mu        sync.RWMutex
	cache     map[string]*robotstxt.RobotsData // host -> parsed data
}

// NewRobots creates a robots.txt checker using the shared session
func NewRobots(client *Client, userAgent string) *Robots {
	return &Robots{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether urlStr may be fetched. A robots.txt that
// cannot be retrieved allows everything and is retried on the next call.
func (r *Robots) Allowed(ctx context.Context, urlStr string) (bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	data := r.rules(ctx, parsedURL)
	if data == nil {
		return true, nil
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}
	return data.TestAgent(path, r.userAgent), nil
}

// CrawlDelay returns the Crawl-delay declared for host, or zero
func (r *Robots) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	data := r.cache[host]
	r.mu.RUnlock()

	if data == nil {
		return 0
	}
	if group := data.FindGroup(r.userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

func (r *Robots) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host

	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", target.Scheme, host)
	data, err := r.fetch(ctx, robotsURL)
	if err != nil {
		slog.Debug("robots.txt unavailable, allowing", "url", robotsURL, "error", err)
		return nil
	}

	r.mu.Lock()
	r.cache[host] = data
	r.mu.Unlock()

	return data
}

func (r *Robots) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	page, err := r.client.Get(ctx, robotsURL)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			// 4xx means allow all; 5xx means disallow all
			return robotstxt.FromStatusAndBytes(statusErr.StatusCode, nil)
		}
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
}
