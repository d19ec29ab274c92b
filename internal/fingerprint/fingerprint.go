// Package fingerprint canonicalizes discovered work items into dedup keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/cwygoda/pitcher/internal/domain"
)

var (
	corporateSuffix = regexp.MustCompile(`\b(inc|incorporated|llc|ltd|limited|corp|corporation|co|company|gmbh|plc|ag|sa)\b\.?`)
	// \w is ASCII-only in RE2; titles in other scripts must survive.
	nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spaces  = regexp.MustCompile(`\s+`)
)

// Abbreviations are expanded before synonyms are collapsed.
var abbreviations = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\bsr\b\.?`), "senior"},
	{regexp.MustCompile(`\bjr\b\.?`), "junior"},
	{regexp.MustCompile(`\bswe\b`), "software engineer"},
	{regexp.MustCompile(`\beng\b\.?`), "engineer"},
	{regexp.MustCompile(`\bmgr\b\.?`), "manager"},
	{regexp.MustCompile(`\bdev\b\.?`), "developer"},
	{regexp.MustCompile(`\bassoc\b\.?`), "associate"},
}

var synonyms = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\bsoftware engineer\b`), "software developer"},
	{regexp.MustCompile(`\bprogrammer\b`), "developer"},
	{regexp.MustCompile(`\bsde\b`), "software developer"},
}

// NormalizeOrganization lower-cases and strips corporate suffix tokens.
func NormalizeOrganization(org string) string {
	s := strings.ToLower(org)
	s = corporateSuffix.ReplaceAllString(s, " ")
	s = nonWord.ReplaceAllString(s, " ")
	return collapse(s)
}

// NormalizeTitle expands abbreviations, collapses near-synonyms and strips
// non-word characters.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	for _, a := range abbreviations {
		s = a.re.ReplaceAllString(s, a.repl)
	}
	s = nonWord.ReplaceAllString(s, " ")
	s = collapse(s)
	for _, syn := range synonyms {
		s = syn.re.ReplaceAllString(s, syn.repl)
	}
	return s
}

// NormalizeLocation drops "remote" markers and punctuation.
func NormalizeLocation(loc string) string {
	s := strings.ToLower(loc)
	s = strings.ReplaceAll(s, "remote", " ")
	s = nonWord.ReplaceAllString(s, " ")
	return collapse(s)
}

// Fingerprint returns the dedup key of an item. The location suffix is kept
// unhashed so the same role in two cities stays two items.
func Fingerprint(item domain.WorkItem) string {
	content := NormalizeTitle(item.Title) + "|" + NormalizeOrganization(item.Organization)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8]) + "|" + NormalizeLocation(item.Location)
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
