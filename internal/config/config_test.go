package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultSeedURL, cfg.SeedURL)
	assert.Equal(t, "./samples", cfg.Destination)
	assert.Equal(t, 40, cfg.Crawl.Workers)
	assert.Equal(t, 0, cfg.Crawl.QueueSize)
	assert.Equal(t, 20, cfg.Fetch.Workers)
	assert.Equal(t, ModePool, cfg.Fetch.Mode)
	assert.Equal(t, 3*time.Second, cfg.Fetch.BatchWait)
	assert.Equal(t, 32*1024, cfg.Fetch.ChunkSize)
	assert.True(t, cfg.HTTP.RandomUserAgent)
	assert.Equal(t, ".zip", cfg.Extract.ArchiveSuffix)
	assert.Empty(t, cfg.CatalogPath)

	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty seed",
			mutate:  func(c *Config) { c.SeedURL = "" },
			wantErr: ErrEmptySeedURL,
		},
		{
			name:    "empty destination",
			mutate:  func(c *Config) { c.Destination = "" },
			wantErr: ErrEmptyDestination,
		},
		{
			name:    "zero crawl workers",
			mutate:  func(c *Config) { c.Crawl.Workers = 0 },
			wantErr: ErrInvalidConcurrency,
		},
		{
			name:    "negative fetch workers",
			mutate:  func(c *Config) { c.Fetch.Workers = -1 },
			wantErr: ErrInvalidConcurrency,
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.Fetch.QueueSize = -5 },
			wantErr: ErrInvalidQueueSize,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.HTTP.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Fetch.Mode = "stream" },
			wantErr: ErrInvalidMode,
		},
		{
			name:   "batch mode",
			mutate: func(c *Config) { c.Fetch.Mode = ModeBatch },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateClampsChunkAndDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.ChunkSize = 100
	cfg.Crawl.RequestDelay = -time.Second

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4*1024, cfg.Fetch.ChunkSize)
	assert.Equal(t, time.Duration(0), cfg.Crawl.RequestDelay)
}
