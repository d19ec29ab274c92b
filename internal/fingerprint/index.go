package fingerprint

import (
	"sync"

	"github.com/cwygoda/pitcher/internal/domain"
)

// Stats summarizes index activity.
type Stats struct {
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
	Seeded     int `json:"seeded"`
}

// Index is a grow-only set of fingerprints shared across sources and runs.
type Index struct {
	mu         sync.Mutex
	keys       map[string]struct{}
	duplicates int
	seeded     int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{keys: make(map[string]struct{})}
}

// Seed preloads keys, e.g. fingerprints of items already applied to.
func (x *Index) Seed(keys []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, k := range keys {
		if _, ok := x.keys[k]; !ok {
			x.keys[k] = struct{}{}
			x.seeded++
		}
	}
}

// IsDuplicate reports whether the item's key is present, inserting it if not.
func (x *Index) IsDuplicate(item domain.WorkItem) bool {
	key := item.Fingerprint
	if key == "" {
		key = Fingerprint(item)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.keys[key]; ok {
		x.duplicates++
		return true
	}
	x.keys[key] = struct{}{}
	return false
}

// FilterUnique keeps, in input order, items whose key was not yet present.
// Returned items carry their computed fingerprint.
func (x *Index) FilterUnique(items []domain.WorkItem) []domain.WorkItem {
	unique := make([]domain.WorkItem, 0, len(items))
	for _, item := range items {
		if item.Fingerprint == "" {
			item.Fingerprint = Fingerprint(item)
		}
		if !x.IsDuplicate(item) {
			unique = append(unique, item)
		}
	}
	return unique
}

// Contains reports presence without inserting.
func (x *Index) Contains(key string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.keys[key]
	return ok
}

// Stats returns a consistent copy of the counters.
func (x *Index) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return Stats{Unique: len(x.keys) - x.seeded, Duplicates: x.duplicates, Seeded: x.seeded}
}
