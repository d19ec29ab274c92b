package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotTerminal     = errors.New("attempt is not in a terminal state")
	ErrAttemptNotFound = errors.New("attempt not found")
)

// AttemptService orchestrates attempt archival and history lookups.
type AttemptService struct {
	repo AttemptRepository
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(repo AttemptRepository) *AttemptService {
	return &AttemptService{repo: repo}
}

// Archive persists an attempt that reached a terminal state.
func (s *AttemptService) Archive(ctx context.Context, a *Attempt) error {
	if !a.State.IsTerminal() {
		return ErrNotTerminal
	}
	return s.repo.Archive(ctx, a)
}

// Get retrieves an archived attempt by ID.
func (s *AttemptService) Get(ctx context.Context, id string) (*Attempt, error) {
	return s.repo.Get(ctx, id)
}

// Recent returns the most recently archived attempts.
func (s *AttemptService) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Recent(ctx, limit)
}

// Seen returns fingerprints of items that must not be attempted again.
func (s *AttemptService) Seen(ctx context.Context) ([]string, error) {
	return s.repo.Fingerprints(ctx)
}

// SaveSnapshot appends an encoded snapshot to the campaign history.
func (s *AttemptService) SaveSnapshot(ctx context.Context, campaignID string, at time.Time, body []byte) error {
	return s.repo.SaveSnapshot(ctx, campaignID, at, body)
}

// Snapshots returns every encoded snapshot of a campaign, oldest first.
func (s *AttemptService) Snapshots(ctx context.Context, campaignID string) ([][]byte, error) {
	return s.repo.Snapshots(ctx, campaignID)
}
