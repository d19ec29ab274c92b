package router

import "sync"

// Quota caps how many items each strategy may take in one run.
// Strategies without a limit are unbounded.
type Quota struct {
	mu     sync.Mutex
	limits map[string]int
	used   map[string]int
}

// NewQuota creates a quota from per-strategy limits. Zero or negative
// limits are ignored.
func NewQuota(limits map[string]int) *Quota {
	q := &Quota{limits: make(map[string]int), used: make(map[string]int)}
	for k, v := range limits {
		if v > 0 {
			q.limits[k] = v
		}
	}
	return q
}

// Take reserves one slot for strategy and reports whether it was available.
func (q *Quota) Take(strategy string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit, ok := q.limits[strategy]; ok && q.used[strategy] >= limit {
		return false
	}
	q.used[strategy]++
	return true
}

// Used returns how many slots strategy has taken.
func (q *Quota) Used(strategy string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used[strategy]
}
