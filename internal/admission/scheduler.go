package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var ErrInvalidCapacity = errors.New("capacity must be positive")

// Token is one admission. Its slot index doubles as the actor identity for
// speed variant assignment.
type Token struct {
	Slot int

	s    *Scheduler
	once sync.Once
}

// Actor returns the run-actor identity of the token's slot.
func (t *Token) Actor() string {
	return fmt.Sprintf("slot-%d", t.Slot)
}

// Release returns the token. Calling it more than once is a no-op.
func (t *Token) Release() {
	t.once.Do(func() {
		t.s.release(t.Slot)
	})
}

// Scheduler bounds the number of in-flight attempts. Waiters are admitted
// in arrival order.
type Scheduler struct {
	sem      *semaphore.Weighted
	capacity int
	waiting  atomic.Int64

	mu       sync.Mutex
	occupied []bool
	inFlight int
}

// New creates a scheduler admitting at most capacity attempts at once.
func New(capacity int) (*Scheduler, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Scheduler{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		occupied: make([]bool, capacity),
	}, nil
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Scheduler) Acquire(ctx context.Context) (*Token, error) {
	s.waiting.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.waiting.Add(-1)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slot := -1
	for i, busy := range s.occupied {
		if !busy {
			slot = i
			break
		}
	}
	// The semaphore guarantees a free slot.
	s.occupied[slot] = true
	s.inFlight++
	return &Token{Slot: slot, s: s}, nil
}

func (s *Scheduler) release(slot int) {
	s.mu.Lock()
	s.occupied[slot] = false
	s.inFlight--
	s.mu.Unlock()
	s.sem.Release(1)
}

// Capacity returns the admission bound.
func (s *Scheduler) Capacity() int {
	return s.capacity
}

// InFlight returns the number of tokens currently held.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Waiting returns the number of callers blocked in Acquire.
func (s *Scheduler) Waiting() int {
	return int(s.waiting.Load())
}
