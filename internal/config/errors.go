package config

import "errors"

var (
	// ErrEmptySeedURL is returned when no seed URL is configured
	ErrEmptySeedURL = errors.New("seed_url cannot be empty")
	// ErrEmptyDestination is returned when the destination path is empty
	ErrEmptyDestination = errors.New("destination cannot be empty")
	// ErrInvalidConcurrency is returned when a worker count is not greater than 0
	ErrInvalidConcurrency = errors.New("workers must be greater than 0")
	// ErrInvalidQueueSize is returned when a queue size is negative
	ErrInvalidQueueSize = errors.New("queue_size cannot be negative")
	// ErrInvalidTimeout is returned when a request timeout is out of range
	ErrInvalidTimeout = errors.New("http timeout must be greater than 0")
	// ErrInvalidMode is returned for an unknown fetch mode
	ErrInvalidMode = errors.New("fetch mode must be 'pool' or 'batch'")
)
