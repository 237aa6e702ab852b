// Package dedup splits discovered items into those still to download
// and those already present in the destination directory.
package dedup

import (
	"strings"

	"github.com/masahif/packfetch/internal/model"
)

// DefaultSuffix is the archive extension stripped before comparing names
const DefaultSuffix = ".zip"

// Filter compares item file names against an inventory of existing names.
// An archive may exist either as the file itself or as a directory it
// was extracted into, so the suffix is ignored on both sides.
type Filter struct {
	Suffix string
}

// Partition uses the default archive suffix
func Partition(newItems []model.Item, existing []string) (toFetch, present []model.Item) {
	return Filter{Suffix: DefaultSuffix}.Partition(newItems, existing)
}

// Partition returns the items without a match in existing, and those
// with one. Inputs are not modified. With no existing names the input
// slice itself is returned as toFetch.
func (f Filter) Partition(newItems []model.Item, existing []string) (toFetch, present []model.Item) {
	if len(existing) == 0 {
		return newItems, []model.Item{}
	}

	known := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		known[f.normalize(name)] = struct{}{}
	}

	toFetch = make([]model.Item, 0, len(newItems))
	present = make([]model.Item, 0)
	for _, item := range newItems {
		if _, ok := known[f.normalize(item.FileName())]; ok {
			present = append(present, item)
			continue
		}
		toFetch = append(toFetch, item)
	}
	return toFetch, present
}

func (f Filter) normalize(name string) string {
	if f.Suffix == "" {
		return name
	}
	return strings.TrimSuffix(name, f.Suffix)
}
