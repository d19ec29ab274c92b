package domain

import (
	"strings"
	"time"
)

// WorkItem is a discovered candidate before any completion attempt.
// Fields are fixed at discovery; only Metadata may be enriched, via WithMetadata.
type WorkItem struct {
	ID             string
	Title          string
	Organization   string
	Location       string
	Source         string
	URL            string
	DestinationURL string
	Fingerprint    string
	Remote         bool
	PostedAt       *time.Time
	Metadata       map[string]string
}

// Target returns the URL an attempt should navigate to.
func (w WorkItem) Target() string {
	if w.DestinationURL != "" {
		return w.DestinationURL
	}
	return w.URL
}

// WithMetadata returns a copy of the item with key set to value.
func (w WorkItem) WithMetadata(key, value string) WorkItem {
	md := make(map[string]string, len(w.Metadata)+1)
	for k, v := range w.Metadata {
		md[k] = v
	}
	md[key] = value
	w.Metadata = md
	return w
}

// Query is a discovery request sent to every source.
type Query struct {
	Keywords   []string
	Locations  []string
	RemoteOnly bool
	MaxResults int
}

// Matches reports whether an item satisfies the keyword, location and
// remote filters. Sources whose upstream API cannot filter use it locally.
func (q Query) Matches(item WorkItem) bool {
	if q.RemoteOnly && !item.Remote {
		return false
	}
	if len(q.Keywords) > 0 {
		title := strings.ToLower(item.Title)
		found := false
		for _, kw := range q.Keywords {
			if strings.Contains(title, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Locations) > 0 && !item.Remote {
		loc := strings.ToLower(item.Location)
		for _, l := range q.Locations {
			if strings.Contains(loc, strings.ToLower(l)) {
				return true
			}
		}
		return false
	}
	return true
}

// Applicant holds the profile attributes mapped onto form fields.
type Applicant struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Location   string
	LinkedIn   string
	Website    string
	ResumePath string
	// Answers maps a lower-cased question keyword to the answer text.
	Answers map[string]string
}

// FullName joins first and last name.
func (a Applicant) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}
