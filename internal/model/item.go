// Package model defines the records that flow through the crawl and
// fetch stages. An Item is created by the crawler and never changes;
// the fetcher turns a successfully transferred Item into a Download.
package model

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// UnknownSize is reported when a title carries no size annotation
const UnknownSize = "N/A"

// Item is one discovered downloadable resource
type Item struct {
	sourcePage  string // Page the link was found on
	resourceURL string // Absolute URL of the archive
	title       string // Anchor text scraped alongside the link
	fileName    string // Last path segment of resourceURL
}

// NewItem creates an Item and derives its file name from the resource URL
func NewItem(sourcePage, resourceURL, title string) Item {
	return Item{
		sourcePage:  sourcePage,
		resourceURL: resourceURL,
		title:       title,
		fileName:    fileNameFromURL(resourceURL),
	}
}

// SourcePage returns the page URL on which the resource link was found
func (i Item) SourcePage() string { return i.sourcePage }

// URL returns the absolute resource URL
func (i Item) URL() string { return i.resourceURL }

// Title returns the scraped title
func (i Item) Title() string { return i.title }

// FileName returns the on-disk name used for the download and dedup checks
func (i Item) FileName() string { return i.fileName }

// DeclaredSize returns the size annotation parsed from the title, e.g.
// "Free Guitar Loops (150MB)" yields "150MB". Titles without a "MB)"
// annotation, or with unbalanced parentheses, yield UnknownSize.
func (i Item) DeclaredSize() string {
	return ParseDeclaredSize(i.title)
}

// ParseDeclaredSize extracts the parenthesised size annotation from a title
func ParseDeclaredSize(title string) string {
	title = strings.ReplaceAll(title, "'", "")
	if !strings.Contains(title, "MB)") {
		return UnknownSize
	}

	open := strings.Index(title, "(")
	if open < 0 {
		return UnknownSize
	}

	rest := title[open+1:]
	end := strings.Index(rest, ")")
	if end < 0 {
		return UnknownSize
	}

	return rest[:end]
}

// fileNameFromURL returns the last path segment of a URL
func fileNameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); u.Path != "" && base != "/" && base != "." {
			return base
		}
		return ""
	}

	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

// Download is an Item whose transfer completed
type Download struct {
	Item
	Path          string        // Where the file was written
	BytesWritten  int64         // Bytes actually written to disk
	ContentLength int64         // Length declared by the server, or BytesWritten when absent
	Duration      time.Duration // Time spent on the transfer
	CompletedAt   time.Time     // UTC completion timestamp
}

// Complete produces the completed variant of an Item. When the server
// did not declare a length, contentLength should be negative.
func (i Item) Complete(savedPath string, written, contentLength int64, took time.Duration) Download {
	if contentLength < 0 {
		contentLength = written
	}
	return Download{
		Item:          i,
		Path:          savedPath,
		BytesWritten:  written,
		ContentLength: contentLength,
		Duration:      took,
		CompletedAt:   time.Now().UTC(),
	}
}

// Truncated reports whether fewer bytes arrived than the server promised
func (d Download) Truncated() bool {
	return d.BytesWritten != d.ContentLength
}
