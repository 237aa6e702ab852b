// Package config provides configuration management for packfetch.
// It defines configuration structures and default values for the crawl
// and fetch stages.
package config

import (
	"time"
)

// Fetch scheduling modes
const (
	ModePool  = "pool"  // bounded queue + fixed worker pool
	ModeBatch = "batch" // fixed-size chunks with a pause in between
)

// DefaultSeedURL is the index page listing every sample pack article.
const DefaultSeedURL = "https://www.musicradar.com/news/tech/free-music-samples-download-loops-hits-and-multis-627820"

// CrawlConfig controls the crawl stage
type CrawlConfig struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`               // Number of concurrent page workers
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`         // Work queue capacity (0=unbounded)
	MaxPages      int           `mapstructure:"max_pages" yaml:"max_pages"`           // Stop after N secondary pages (0=unlimited)
	RequestDelay  time.Duration `mapstructure:"request_delay" yaml:"request_delay"`   // Per-host delay between page requests (0=off)
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"` // Whether to honour robots.txt
}

// FetchConfig controls the download stage
type FetchConfig struct {
	Workers   int           `mapstructure:"workers" yaml:"workers"`       // Number of concurrent download workers
	QueueSize int           `mapstructure:"queue_size" yaml:"queue_size"` // Work queue capacity (0=unbounded)
	Mode      string        `mapstructure:"mode" yaml:"mode"`             // pool or batch
	BatchWait time.Duration `mapstructure:"batch_wait" yaml:"batch_wait"` // Pause between batches in batch mode
	ChunkSize int           `mapstructure:"chunk_size" yaml:"chunk_size"` // Copy buffer size in bytes
}

// HTTPConfig controls the shared HTTP session
type HTTPConfig struct {
	Timeout         time.Duration     `mapstructure:"timeout" yaml:"timeout"`                   // Page request timeout
	DownloadTimeout time.Duration     `mapstructure:"download_timeout" yaml:"download_timeout"` // Archive download timeout (0=none)
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`             // Fixed User-Agent when not randomized
	RandomUserAgent bool              `mapstructure:"random_user_agent" yaml:"random_user_agent"`
	Proxy           string            `mapstructure:"proxy" yaml:"proxy"`     // Proxy URL for every request
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"` // Extra request headers
}

// ExtractConfig describes where links live in the seed and secondary pages
type ExtractConfig struct {
	SeedSelector  string `mapstructure:"seed_selector" yaml:"seed_selector"`   // Paragraphs holding secondary page links
	SeedSkipHead  int    `mapstructure:"seed_skip_head" yaml:"seed_skip_head"` // Leading paragraphs to ignore
	SeedSkipTail  int    `mapstructure:"seed_skip_tail" yaml:"seed_skip_tail"` // Trailing paragraphs to ignore
	ItemSelector  string `mapstructure:"item_selector" yaml:"item_selector"`   // Paragraphs holding archive links
	ArchiveSuffix string `mapstructure:"archive_suffix" yaml:"archive_suffix"` // Only links ending with this are items
}

// LogConfig controls logging output
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Config holds the complete packfetch configuration
type Config struct {
	SeedURL     string `mapstructure:"seed_url" yaml:"seed_url"`         // Index page to crawl
	Destination string `mapstructure:"destination" yaml:"destination"`   // Download directory
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path"` // SQLite run catalog (empty=disabled)
	AssumeYes   bool   `mapstructure:"assume_yes" yaml:"assume_yes"`     // Skip the confirmation prompt

	Crawl   CrawlConfig   `mapstructure:"crawl" yaml:"crawl"`
	Fetch   FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SeedURL:     DefaultSeedURL,
		Destination: "./samples",
		Crawl: CrawlConfig{
			Workers:   40,
			QueueSize: 0, // unbounded
		},
		Fetch: FetchConfig{
			Workers:   20,
			QueueSize: 40,
			Mode:      ModePool,
			BatchWait: 3 * time.Second,
			ChunkSize: 32 * 1024,
		},
		HTTP: HTTPConfig{
			Timeout:         60 * time.Second,
			UserAgent:       "packfetch/1.0",
			RandomUserAgent: true,
		},
		Extract: ExtractConfig{
			SeedSelector:  "#article-body p",
			SeedSkipHead:  6,
			SeedSkipTail:  1,
			ItemSelector:  ".text-copy.bodyCopy.auto p",
			ArchiveSuffix: ".zip",
		},
		Log: LogConfig{
			Level:      "warn",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SeedURL == "" {
		return ErrEmptySeedURL
	}

	if c.Destination == "" {
		return ErrEmptyDestination
	}

	if c.Crawl.Workers <= 0 || c.Fetch.Workers <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Crawl.QueueSize < 0 || c.Fetch.QueueSize < 0 {
		return ErrInvalidQueueSize
	}

	if c.HTTP.Timeout <= 0 || c.HTTP.DownloadTimeout < 0 {
		return ErrInvalidTimeout
	}

	switch c.Fetch.Mode {
	case ModePool, ModeBatch:
	default:
		return ErrInvalidMode
	}

	// Minimum copy buffer is 4 KiB
	if c.Fetch.ChunkSize < 4*1024 {
		c.Fetch.ChunkSize = 4 * 1024
	}

	if c.Crawl.RequestDelay < 0 {
		c.Crawl.RequestDelay = 0
	}

	return nil
}
