package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/cwygoda/pitcher/internal/domain"
)

const (
	userAgent = "pitcher/1.0 (+https://github.com/cwygoda/pitcher)"
	maxBody   = 10 << 20
)

// ErrTooLarge is returned when a response body exceeds the read limit.
var ErrTooLarge = errors.New("response too large")

// NewClient returns the HTTP client shared by the sources.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

var textPolicy = bluemonday.StrictPolicy()

// plainText strips markup from an HTML fragment and collapses whitespace.
func plainText(fragment string) string {
	return strings.Join(strings.Fields(textPolicy.Sanitize(fragment)), " ")
}

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("GET %s: %w (over %d bytes)", url, ErrTooLarge, maxBody)
	}
	return body, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := fetch(ctx, client, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// collect filters items through q and applies its result bound.
func collect(q domain.Query, items []domain.WorkItem) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(items))
	for _, it := range items {
		if !q.Matches(it) {
			continue
		}
		out = append(out, it)
		if q.MaxResults > 0 && len(out) == q.MaxResults {
			break
		}
	}
	return out
}

func isRemote(location string) bool {
	return strings.Contains(strings.ToLower(location), "remote")
}
