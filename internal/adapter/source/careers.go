package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/router"
)

// Classifier decides whether a link points at a known application flow.
type Classifier interface {
	Route(url string) string
	IsDirectCompletionURL(url string) bool
}

// Page is a company careers page.
type Page struct {
	Organization string
	URL          string
}

// Careers scans company careers pages for links into known application
// systems. The page is the item URL and the link its destination.
type Careers struct {
	client   *http.Client
	classify Classifier
	pages    []Page
}

func NewCareers(client *http.Client, c Classifier, pages []Page) *Careers {
	return &Careers{client: client, classify: c, pages: pages}
}

func (c *Careers) Name() string { return "careers" }

func (c *Careers) Search(ctx context.Context, q domain.Query) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	var lastErr error
	fetched := 0
	for _, p := range c.pages {
		body, err := fetch(ctx, c.client, p.URL)
		if err != nil {
			lastErr = err
			continue
		}
		fetched++
		links, err := extractLinks(body, p.URL)
		if err != nil {
			lastErr = err
			continue
		}
		seen := make(map[string]bool)
		for _, l := range links {
			if seen[l.href] || !c.accept(l.href) {
				continue
			}
			seen[l.href] = true
			sum := sha256.Sum256([]byte(l.href))
			items = append(items, domain.WorkItem{
				ID:             "careers-" + hex.EncodeToString(sum[:6]),
				Title:          l.text,
				Organization:   p.Organization,
				Source:         c.Name(),
				URL:            p.URL,
				DestinationURL: l.href,
				Remote:         isRemote(l.text),
			})
		}
	}
	if fetched == 0 && lastErr != nil {
		return nil, lastErr
	}
	return collect(q, items), nil
}

func (c *Careers) accept(href string) bool {
	return c.classify.Route(href) != router.Unknown || c.classify.IsDirectCompletionURL(href)
}

type link struct {
	href string
	text string
}

func extractLinks(body []byte, base string) ([]link, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	var links []link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(a.Val))
				if err != nil || strings.HasPrefix(a.Val, "#") {
					break
				}
				abs := baseURL.ResolveReference(ref)
				if abs.Scheme != "http" && abs.Scheme != "https" {
					break
				}
				links = append(links, link{href: abs.String(), text: nodeText(n)})
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return links, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
