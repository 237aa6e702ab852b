package crawler

import (
	"context"
	"time"

	"github.com/masahif/packfetch/internal/model"
	"github.com/masahif/packfetch/internal/web"
)

// PageSource performs a single page GET through the shared session
type PageSource interface {
	Get(ctx context.Context, url string) (*web.Page, error)
}

// Extractor turns page bodies into links and items
type Extractor interface {
	PageLinks(pageURL string, body []byte) ([]string, error)
	Items(pageURL string, body []byte) ([]model.Item, error)
}

// RobotsPolicy decides whether a page may be fetched
type RobotsPolicy interface {
	Allowed(ctx context.Context, url string) (bool, error)
	CrawlDelay(host string) time.Duration
}
