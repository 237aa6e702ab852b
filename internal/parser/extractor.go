// Package parser extracts secondary-page links from a seed page and
// downloadable items from secondary pages. It parses with x/net/html and
// queries the tree with CSS selectors through goquery.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/masahif/packfetch/internal/config"
	"github.com/masahif/packfetch/internal/model"
)

// Rules describes where links live in the markup
type Rules struct {
	SeedSelector  string // Paragraphs on the seed page holding page links
	SeedSkipHead  int    // Leading paragraphs to ignore
	SeedSkipTail  int    // Trailing paragraphs to ignore
	ItemSelector  string // Paragraphs on a secondary page holding item links
	ArchiveSuffix string // Only hrefs ending with this suffix are items
}

// RulesFromConfig converts extraction config into Rules
func RulesFromConfig(c config.ExtractConfig) Rules {
	return Rules{
		SeedSelector:  c.SeedSelector,
		SeedSkipHead:  c.SeedSkipHead,
		SeedSkipTail:  c.SeedSkipTail,
		ItemSelector:  c.ItemSelector,
		ArchiveSuffix: c.ArchiveSuffix,
	}
}

// SelectorExtractor implements page and item extraction over CSS selectors
type SelectorExtractor struct {
	rules Rules
}

// NewSelectorExtractor creates an extractor. Empty rule fields fall back
// to the defaults from config.DefaultConfig.
func NewSelectorExtractor(rules Rules) *SelectorExtractor {
	defaults := RulesFromConfig(config.DefaultConfig().Extract)
	if rules.SeedSelector == "" {
		rules.SeedSelector = defaults.SeedSelector
	}
	if rules.ItemSelector == "" {
		rules.ItemSelector = defaults.ItemSelector
	}
	if rules.ArchiveSuffix == "" {
		rules.ArchiveSuffix = defaults.ArchiveSuffix
	}
	if rules.SeedSkipHead < 0 {
		rules.SeedSkipHead = 0
	}
	if rules.SeedSkipTail < 0 {
		rules.SeedSkipTail = 0
	}
	return &SelectorExtractor{rules: rules}
}

// PageLinks returns secondary-page URLs from the seed page, in document
// order. Only the first anchor of each paragraph counts. A page without
// enough paragraphs yields nothing.
func (e *SelectorExtractor) PageLinks(pageURL string, body []byte) ([]string, error) {
	doc, base, err := parseDocument(pageURL, body)
	if err != nil {
		return nil, err
	}

	paragraphs := doc.Find(e.rules.SeedSelector)
	count := paragraphs.Length()
	if count <= e.rules.SeedSkipHead+e.rules.SeedSkipTail {
		return nil, nil
	}
	paragraphs = paragraphs.Slice(e.rules.SeedSkipHead, count-e.rules.SeedSkipTail)

	var links []string
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		href, ok := p.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		if abs, ok := resolve(base, href); ok {
			links = append(links, abs)
		}
	})

	return links, nil
}

// Items returns the downloadable items found on a secondary page. A page
// without the expected markup yields an empty slice, not an error.
func (e *SelectorExtractor) Items(pageURL string, body []byte) ([]model.Item, error) {
	doc, base, err := parseDocument(pageURL, body)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	doc.Find(e.rules.ItemSelector).Each(func(_ int, p *goquery.Selection) {
		anchor := p.Find("a[href]").First()
		href, ok := anchor.Attr("href")
		if !ok || !strings.HasSuffix(strings.TrimSpace(href), e.rules.ArchiveSuffix) {
			return
		}
		abs, ok := resolve(base, href)
		if !ok {
			return
		}
		items = append(items, model.NewItem(pageURL, abs, strings.TrimSpace(anchor.Text())))
	})

	return items, nil
}

func parseDocument(pageURL string, body []byte) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page URL: %w", err)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return goquery.NewDocumentFromNode(root), base, nil
}

// resolve makes href absolute against base and keeps only http(s) links
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}
