package source

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cwygoda/pitcher/internal/domain"
)

// DefaultGreenhouseBase is the public Greenhouse job board API.
const DefaultGreenhouseBase = "https://boards-api.greenhouse.io"

// Greenhouse searches the public job boards of a list of companies.
type Greenhouse struct {
	client *http.Client
	base   string
	boards []string
}

// NewGreenhouse creates a Greenhouse source over the given board tokens.
func NewGreenhouse(client *http.Client, base string, boards []string) *Greenhouse {
	if base == "" {
		base = DefaultGreenhouseBase
	}
	return &Greenhouse{client: client, base: base, boards: boards}
}

func (g *Greenhouse) Name() string { return "greenhouse" }

type greenhouseJobs struct {
	Jobs []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		AbsoluteURL string `json:"absolute_url"`
		UpdatedAt   string `json:"updated_at"`
		Content     string `json:"content"`
		Location    struct {
			Name string `json:"name"`
		} `json:"location"`
	} `json:"jobs"`
}

// Search fetches every board. It fails only when every board fails.
func (g *Greenhouse) Search(ctx context.Context, q domain.Query) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	var errs *multierror.Error
	for _, board := range g.boards {
		var resp greenhouseJobs
		u := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", g.base, url.PathEscape(board))
		if err := fetchJSON(ctx, g.client, u, &resp); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("board %s: %w", board, err))
			continue
		}
		for _, j := range resp.Jobs {
			item := domain.WorkItem{
				ID:           fmt.Sprintf("greenhouse-%d", j.ID),
				Title:        j.Title,
				Organization: board,
				Location:     j.Location.Name,
				Source:       g.Name(),
				URL:          j.AbsoluteURL,
				Remote:       isRemote(j.Location.Name),
			}
			if t, err := time.Parse(time.RFC3339, j.UpdatedAt); err == nil {
				item.PostedAt = &t
			}
			if j.Content != "" {
				// The API returns the description HTML-escaped.
				item = item.WithMetadata("description", plainText(html.UnescapeString(j.Content)))
			}
			items = append(items, item)
		}
	}
	if len(items) == 0 && errs.ErrorOrNil() != nil {
		return nil, errs
	}
	return collect(q, items), nil
}
