package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwygoda/pitcher/internal/domain"
)

// Feed searches an RSS 2.0 or Atom job feed. The URL may carry the
// placeholders {query} and {location}, filled from the query.
//
// Entry titles in the "Title - Organization - Location" form used by
// most job board feeds are split into their parts.
type Feed struct {
	client   *http.Client
	name     string
	template string
}

func NewFeed(client *http.Client, name, template string) *Feed {
	return &Feed{client: client, name: name, template: template}
}

func (f *Feed) Name() string { return f.name }

var errUnknownFeed = errors.New("unknown feed format (expected <rss> or <feed>)")

type feedEntry struct {
	guid        string
	title       string
	link        string
	description string
	published   string
}

type rssDoc struct {
	Channel struct {
		Items []struct {
			GUID        string `xml:"guid"`
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDoc struct {
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
		Updated string `xml:"updated"`
		Links   []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

func (f *Feed) Search(ctx context.Context, q domain.Query) ([]domain.WorkItem, error) {
	u := f.expand(q)
	body, err := fetch(ctx, f.client, u)
	if err != nil {
		return nil, err
	}
	entries, err := parseFeed(body)
	if err != nil {
		return nil, err
	}

	items := make([]domain.WorkItem, 0, len(entries))
	for _, e := range entries {
		title, org, loc := splitTitle(e.title)
		key := e.guid
		if key == "" {
			key = e.link
		}
		sum := sha256.Sum256([]byte(key))
		item := domain.WorkItem{
			ID:           f.name + "-" + hex.EncodeToString(sum[:6]),
			Title:        title,
			Organization: org,
			Location:     loc,
			Source:       f.name,
			URL:          e.link,
			Remote:       isRemote(loc) || isRemote(title),
		}
		if t, ok := parseFeedTime(e.published); ok {
			item.PostedAt = &t
		}
		if e.description != "" {
			item = item.WithMetadata("description", plainText(e.description))
		}
		items = append(items, item)
	}
	return collect(q, items), nil
}

func (f *Feed) expand(q domain.Query) string {
	loc := ""
	if len(q.Locations) > 0 {
		loc = q.Locations[0]
	}
	r := strings.NewReplacer(
		"{query}", url.QueryEscape(strings.Join(q.Keywords, " ")),
		"{location}", url.QueryEscape(loc),
	)
	return r.Replace(f.template)
}

func parseFeed(data []byte) ([]feedEntry, error) {
	data = bytes.TrimSpace(data)
	d := xml.NewDecoder(bytes.NewReader(data))
	var root string
	for root == "" {
		tok, err := d.Token()
		if err != nil {
			return nil, errUnknownFeed
		}
		if se, ok := tok.(xml.StartElement); ok {
			root = strings.ToLower(se.Name.Local)
		}
	}

	switch root {
	case "rss", "rdf":
		var doc rssDoc
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		out := make([]feedEntry, 0, len(doc.Channel.Items))
		for _, it := range doc.Channel.Items {
			out = append(out, feedEntry{
				guid:        strings.TrimSpace(it.GUID),
				title:       strings.TrimSpace(it.Title),
				link:        strings.TrimSpace(it.Link),
				description: it.Description,
				published:   strings.TrimSpace(it.PubDate),
			})
		}
		return out, nil
	case "feed":
		var doc atomDoc
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		out := make([]feedEntry, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			link := ""
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			out = append(out, feedEntry{
				guid:        strings.TrimSpace(e.ID),
				title:       strings.TrimSpace(e.Title),
				link:        strings.TrimSpace(link),
				description: e.Summary,
				published:   strings.TrimSpace(e.Updated),
			})
		}
		return out, nil
	}
	return nil, errUnknownFeed
}

// splitTitle splits "Title - Organization - Location". The title itself
// may contain dashes, so the last two parts are taken from the right.
func splitTitle(s string) (title, org, loc string) {
	parts := strings.Split(s, " - ")
	switch {
	case len(parts) >= 3:
		n := len(parts)
		return strings.Join(parts[:n-2], " - "), parts[n-2], parts[n-1]
	case len(parts) == 2:
		return parts[0], parts[1], ""
	}
	return s, "", ""
}

var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

func parseFeedTime(s string) (time.Time, bool) {
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
