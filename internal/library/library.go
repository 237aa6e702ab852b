// Package library manages the destination directory, which doubles as
// the record of what has already been downloaded.
package library

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDestination is returned when the destination cannot be used
var ErrDestination = errors.New("destination unusable")

// Destination is a prepared download directory
type Destination struct {
	Path    string // Absolute path
	Created bool   // True when Prepare had to create it
}

// Prepare resolves path and makes sure it is a directory, creating it
// (and missing parents) when absent.
func Prepare(path string) (Destination, error) {
	if strings.TrimSpace(path) == "" {
		return Destination{}, fmt.Errorf("%w: empty path", ErrDestination)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %w", ErrDestination, err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			return Destination{}, fmt.Errorf("%w: %s is not a directory", ErrDestination, abs)
		}
		return Destination{Path: abs}, nil

	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return Destination{}, fmt.Errorf("%w: failed to create %s: %w", ErrDestination, abs, err)
		}
		slog.Info("Created destination directory", "path", abs)
		return Destination{Path: abs, Created: true}, nil

	default:
		return Destination{}, fmt.Errorf("%w: %w", ErrDestination, err)
	}
}

// ListExistingNames returns the names in dir that mark a prior
// download: files ending with suffix, and directories. Output is sorted.
func ListExistingNames(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			names = append(names, name)
		case entry.Type().IsRegular() && strings.HasSuffix(name, suffix):
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

// Inventory lists prior downloads for a prepared destination. A freshly
// created directory is known to be empty and is not scanned.
func (d Destination) Inventory(suffix string) ([]string, error) {
	if d.Created {
		return nil, nil
	}
	return ListExistingNames(d.Path, suffix)
}
