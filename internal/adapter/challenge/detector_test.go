package challenge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwygoda/pitcher/internal/domain"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		ev    domain.Evidence
		want  domain.ChallengeType
		found bool
	}{
		{"recaptcha frame", domain.Evidence{Text: `<div class="g-recaptcha">`}, TypeRecaptcha, true},
		{"hcaptcha url", domain.Evidence{URL: "https://hcaptcha.com/checksiteconfig"}, TypeHCaptcha, true},
		{"cloudflare", domain.Evidence{Text: "Checking your browser before accessing"}, TypeTurnstile, true},
		{"generic", domain.Evidence{Text: "Please verify you are human"}, TypeGeneric, true},
		{"plain form", domain.Evidence{URL: "https://boards.greenhouse.io/acme/jobs/1", Text: "Apply for this job"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Detect(tt.ev)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReviewSolver_NeverSolves(t *testing.T) {
	var s ReviewSolver
	ct, found := s.Detect(context.Background(), domain.Evidence{Text: "captcha"})
	assert.True(t, found)

	_, ok, err := s.Solve(context.Background(), ct)
	assert.False(t, ok)
	assert.NoError(t, err)
}
