package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cwygoda/pitcher/internal/domain"
)

// DefaultLeverBase is the public Lever postings API.
const DefaultLeverBase = "https://api.lever.co"

// Lever searches the public postings of a list of companies.
type Lever struct {
	client    *http.Client
	base      string
	companies []string
}

// NewLever creates a Lever source over the given company slugs.
func NewLever(client *http.Client, base string, companies []string) *Lever {
	if base == "" {
		base = DefaultLeverBase
	}
	return &Lever{client: client, base: base, companies: companies}
}

func (l *Lever) Name() string { return "lever" }

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	ApplyURL         string `json:"applyUrl"`
	CreatedAt        int64  `json:"createdAt"`
	WorkplaceType    string `json:"workplaceType"`
	DescriptionPlain string `json:"descriptionPlain"`
	Categories       struct {
		Location   string `json:"location"`
		Commitment string `json:"commitment"`
		Team       string `json:"team"`
	} `json:"categories"`
}

// Search fetches every company. It fails only when every company fails.
func (l *Lever) Search(ctx context.Context, q domain.Query) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	var errs *multierror.Error
	for _, company := range l.companies {
		var postings []leverPosting
		u := fmt.Sprintf("%s/v0/postings/%s?mode=json", l.base, url.PathEscape(company))
		if err := fetchJSON(ctx, l.client, u, &postings); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("company %s: %w", company, err))
			continue
		}
		for _, p := range postings {
			item := domain.WorkItem{
				ID:             "lever-" + p.ID,
				Title:          p.Text,
				Organization:   company,
				Location:       p.Categories.Location,
				Source:         l.Name(),
				URL:            p.HostedURL,
				DestinationURL: p.ApplyURL,
				Remote:         p.WorkplaceType == "remote" || isRemote(p.Categories.Location),
			}
			if p.CreatedAt > 0 {
				t := time.UnixMilli(p.CreatedAt).UTC()
				item.PostedAt = &t
			}
			if p.Categories.Commitment != "" {
				item = item.WithMetadata("commitment", p.Categories.Commitment)
			}
			if p.Categories.Team != "" {
				item = item.WithMetadata("team", p.Categories.Team)
			}
			if p.DescriptionPlain != "" {
				item = item.WithMetadata("description", plainText(p.DescriptionPlain))
			}
			items = append(items, item)
		}
	}
	if len(items) == 0 && errs.ErrorOrNil() != nil {
		return nil, errs
	}
	return collect(q, items), nil
}
