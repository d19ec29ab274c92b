package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwygoda/pitcher/internal/domain"
)

func TestParseFields(t *testing.T) {
	raw := `[
		{"idx":0,"name":"first_name","label":"First Name","type":"text","required":true,"options":[]},
		{"idx":1,"name":"email","label":"Email","type":"email","required":true},
		{"idx":2,"name":"resume","label":"Resume/CV","type":"file"},
		{"idx":3,"name":"auth","label":"Authorized?","type":"select","options":["Yes","No"]},
		{"idx":4,"name":"gdpr","label":"I agree","type":"checkbox"}
	]`
	fs, err := parseFields(raw)
	require.NoError(t, err)
	require.Len(t, fs, 5)

	assert.Equal(t, "0|first_name", fs[0].Selector)
	assert.True(t, fs[0].Required)
	assert.Equal(t, domain.FieldEmail, fs[1].Kind)
	assert.Equal(t, domain.FieldFile, fs[2].Kind)
	assert.Equal(t, domain.FieldSelect, fs[3].Kind)
	assert.Equal(t, []string{"Yes", "No"}, fs[3].Options)
	assert.Equal(t, domain.FieldCheckbox, fs[4].Kind)
}

func TestParseFields_Invalid(t *testing.T) {
	_, err := parseFields("not json")
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name      string
		sel       string
		fallbacks int
		want      []string
	}{
		{"all", "3|email", 3, []string{`[data-pitcher-field="3"]`, `[name="email"]`, `#email`}},
		{"bounded", "3|email", 2, []string{`[data-pitcher-field="3"]`, `[name="email"]`}},
		{"zero means primary only", "3|email", 0, []string{`[data-pitcher-field="3"]`}},
		{"no name", "7|", 5, []string{`[data-pitcher-field="7"]`}},
		{"escaped id", "1|job[app]", 3, []string{`[data-pitcher-field="1"]`, `[name="job[app]"]`, `#job\5b app\5d `}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, candidates(tt.sel, tt.fallbacks))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
}
