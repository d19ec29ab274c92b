package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwygoda/pitcher/internal/evaluator"
)

func TestSnapshotReport(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var bodies [][]byte
	for i, s := range []evaluator.Snapshot{
		{At: start, Target: 10, Completed: 2, Successful: 1, Failed: 1, ThroughputPerMinute: 4},
		{At: start.Add(time.Minute), Target: 10, Completed: 5, Successful: 4, Failed: 1, ThroughputPerMinute: 6, SuccessRate: 0.8},
		{At: start.Add(2 * time.Minute), Target: 10, Completed: 6, Successful: 4, Failed: 1, Skipped: 1, PendingReview: 1, ThroughputPerMinute: 3, SuccessRate: 4.0 / 6},
	} {
		b, err := json.Marshal(s)
		require.NoError(t, err, "snapshot %d", i)
		bodies = append(bodies, b)
	}

	r, err := snapshotReport("spring", bodies)
	require.NoError(t, err)
	assert.Equal(t, "spring", r.CampaignID)
	assert.True(t, r.StartedAt.Equal(start))
	assert.True(t, r.EndedAt.Equal(start.Add(2*time.Minute)))
	assert.Equal(t, 6, r.Completed)
	assert.Equal(t, 4, r.Successful)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 10, r.TargetCount)
	assert.Equal(t, 6.0, r.PeakThroughput)
	assert.Equal(t, 3.0, r.ThroughputPerMinute)
	assert.Len(t, r.Snapshots, 3)
}

func TestSnapshotReport_BadBody(t *testing.T) {
	_, err := snapshotReport("x", [][]byte{[]byte("{")})
	assert.ErrorContains(t, err, "decode snapshot")
}

func TestRouteCommand(t *testing.T) {
	t.Setenv("PITCHER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"route", "https://boards.greenhouse.io/acme/jobs/123"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "strategy:  greenhouse")
	assert.Contains(t, out.String(), "direct:    true")
}
