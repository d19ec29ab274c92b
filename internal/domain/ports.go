package domain

import (
	"context"
	"time"
)

// Source is the driven port for a discovery backend.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]WorkItem, error)
}

// FieldKind tells FillForm and AnswerQuestions what a detected field holds.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldEmail    FieldKind = "email"
	FieldPhone    FieldKind = "tel"
	FieldFile     FieldKind = "file"
	FieldTextArea FieldKind = "textarea"
	FieldSelect   FieldKind = "select"
	FieldCheckbox FieldKind = "checkbox"
)

// Field is one input detected on the current page.
type Field struct {
	// Selector is an opaque handle understood only by the driver that produced it.
	Selector string
	Name     string
	Label    string
	Kind     FieldKind
	Required bool
	Options  []string
}

// FieldSet is the result of DetectFields.
type FieldSet []Field

// Evidence references a captured page state (screenshot, HTML dump).
type Evidence struct {
	Ref  string
	URL  string
	Text string
}

// Driver is the Execution Driver session used by one attempt run. Every
// method may fail; errors are classified by text when not typed.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	DetectFields(ctx context.Context) (FieldSet, error)
	Fill(ctx context.Context, field Field, value string) error
	Submit(ctx context.Context) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
	PageText(ctx context.Context) (string, error)
	CaptureEvidence(ctx context.Context) (Evidence, error)
	Close() error
}

// DriverOptions carries the strategy tunables a driver session honours.
type DriverOptions struct {
	PreActionWait     time.Duration
	PostActionWait    time.Duration
	PostAnimationWait time.Duration
	FallbackSelectors int
	ScrollBeforeClick bool
	FreshSession      bool
	StepDelay         time.Duration
}

// DriverFactory opens a fresh session per attempt run.
type DriverFactory interface {
	Open(ctx context.Context, opts DriverOptions) (Driver, error)
}

// ChallengeType identifies an anti-automation verification step.
type ChallengeType string

// ChallengeSolver is the external solver contract. Implementations must
// honour ctx deadlines and never block indefinitely.
type ChallengeSolver interface {
	Detect(ctx context.Context, evidence Evidence) (ChallengeType, bool)
	Solve(ctx context.Context, challenge ChallengeType) (string, bool, error)
}

// AttemptRepository is the driven port for attempt archival.
type AttemptRepository interface {
	Archive(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	Recent(ctx context.Context, limit int) ([]Attempt, error)
	Fingerprints(ctx context.Context) ([]string, error)
	SaveSnapshot(ctx context.Context, campaignID string, at time.Time, body []byte) error
	Snapshots(ctx context.Context, campaignID string) ([][]byte, error)
}
