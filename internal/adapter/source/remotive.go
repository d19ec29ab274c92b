package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwygoda/pitcher/internal/domain"
)

// DefaultRemotiveBase is the public Remotive API.
const DefaultRemotiveBase = "https://remotive.com"

// Remotive searches the Remotive remote job board. Every item it
// returns is remote.
type Remotive struct {
	client *http.Client
	base   string
}

func NewRemotive(client *http.Client, base string) *Remotive {
	if base == "" {
		base = DefaultRemotiveBase
	}
	return &Remotive{client: client, base: base}
}

func (r *Remotive) Name() string { return "remotive" }

type remotiveJobs struct {
	Jobs []struct {
		ID              int64  `json:"id"`
		URL             string `json:"url"`
		Title           string `json:"title"`
		CompanyName     string `json:"company_name"`
		Location        string `json:"candidate_required_location"`
		JobType         string `json:"job_type"`
		PublicationDate string `json:"publication_date"`
		Description     string `json:"description"`
	} `json:"jobs"`
}

const remotiveTimeLayout = "2006-01-02T15:04:05"

func (r *Remotive) Search(ctx context.Context, q domain.Query) ([]domain.WorkItem, error) {
	params := url.Values{}
	if len(q.Keywords) > 0 {
		params.Set("search", strings.Join(q.Keywords, " "))
	}
	if q.MaxResults > 0 {
		params.Set("limit", fmt.Sprint(q.MaxResults))
	}
	u := r.base + "/api/remote-jobs"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var resp remotiveJobs
	if err := fetchJSON(ctx, r.client, u, &resp); err != nil {
		return nil, err
	}

	items := make([]domain.WorkItem, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		item := domain.WorkItem{
			ID:           fmt.Sprintf("remotive-%d", j.ID),
			Title:        j.Title,
			Organization: j.CompanyName,
			Location:     j.Location,
			Source:       r.Name(),
			URL:          j.URL,
			Remote:       true,
		}
		if t, err := time.Parse(remotiveTimeLayout, j.PublicationDate); err == nil {
			item.PostedAt = &t
		}
		if j.JobType != "" {
			item = item.WithMetadata("job_type", j.JobType)
		}
		if j.Description != "" {
			item = item.WithMetadata("description", plainText(j.Description))
		}
		items = append(items, item)
	}
	// The upstream search also matches descriptions; keywords must hit the title.
	return collect(q, items), nil
}
