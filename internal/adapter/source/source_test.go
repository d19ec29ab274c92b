package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/router"
)

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGreenhouse_Search(t *testing.T) {
	srv := serve(t, map[string]string{
		"/v1/boards/acme/jobs": `{"jobs":[
			{"id":1,"title":"Backend Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/1",
			 "updated_at":"2026-01-02T10:00:00-05:00","location":{"name":"Remote, US"},
			 "content":"&lt;p&gt;Build &lt;b&gt;things&lt;/b&gt;&lt;/p&gt;"},
			{"id":2,"title":"Office Manager","absolute_url":"https://boards.greenhouse.io/acme/jobs/2",
			 "location":{"name":"Berlin"}}
		]}`,
	})

	g := NewGreenhouse(srv.Client(), srv.URL, []string{"acme", "missing"})
	items, err := g.Search(context.Background(), domain.Query{Keywords: []string{"engineer"}})
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "greenhouse-1", it.ID)
	assert.Equal(t, "acme", it.Organization)
	assert.Equal(t, "greenhouse", it.Source)
	assert.True(t, it.Remote)
	require.NotNil(t, it.PostedAt)
	assert.Equal(t, "Build things", it.Metadata["description"])
}

func TestGreenhouse_AllBoardsFail(t *testing.T) {
	srv := serve(t, nil)
	g := NewGreenhouse(srv.Client(), srv.URL, []string{"a", "b"})

	_, err := g.Search(context.Background(), domain.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "board a")
	assert.Contains(t, err.Error(), "board b")
	assert.Contains(t, err.Error(), "404")
}

func TestLever_Search(t *testing.T) {
	srv := serve(t, map[string]string{
		"/v0/postings/globex": `[
			{"id":"abc","text":"Platform Engineer","hostedUrl":"https://jobs.lever.co/globex/abc",
			 "applyUrl":"https://jobs.lever.co/globex/abc/apply","createdAt":1767225600000,
			 "workplaceType":"remote","descriptionPlain":"Run  the\nplatform",
			 "categories":{"location":"Anywhere","commitment":"Full-time","team":"Infra"}}
		]`,
	})

	l := NewLever(srv.Client(), srv.URL, []string{"globex"})
	items, err := l.Search(context.Background(), domain.Query{RemoteOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "lever-abc", it.ID)
	assert.Equal(t, "https://jobs.lever.co/globex/abc/apply", it.Target())
	assert.True(t, it.Remote)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *it.PostedAt)
	assert.Equal(t, "Full-time", it.Metadata["commitment"])
	assert.Equal(t, "Run the platform", it.Metadata["description"])
}

func TestRemotive_Search(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/remote-jobs", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"jobs":[
			{"id":7,"url":"https://remotive.com/jobs/7","title":"Go Developer","company_name":"Initech",
			 "candidate_required_location":"Worldwide","publication_date":"2026-02-01T08:00:00"},
			{"id":8,"url":"https://remotive.com/jobs/8","title":"Designer","company_name":"Initech"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewRemotive(srv.Client(), srv.URL)
	items, err := r.Search(context.Background(), domain.Query{Keywords: []string{"go"}, MaxResults: 5})
	require.NoError(t, err)

	assert.Equal(t, "limit=5&search=go", gotQuery)
	require.Len(t, items, 1)
	assert.Equal(t, "remotive-7", items[0].ID)
	assert.True(t, items[0].Remote)
	require.NotNil(t, items[0].PostedAt)
}

func TestFeed_RSS(t *testing.T) {
	srv := serve(t, map[string]string{
		"/rss": `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><title>Senior Engineer - Full-Stack - Acme Inc - Austin, TX</title>
<link>https://example.com/job/1</link><guid>job-1</guid>
<pubDate>Mon, 05 Jan 2026 10:00:00 +0000</pubDate>
<description>&lt;b&gt;Great&lt;/b&gt; role</description></item>
<item><title>Recruiter - Acme Inc - Remote</title><link>https://example.com/job/2</link></item>
</channel></rss>`,
	})

	f := NewFeed(srv.Client(), "indeed", srv.URL+"/rss?q={query}&l={location}")
	items, err := f.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Senior Engineer - Full-Stack", items[0].Title)
	assert.Equal(t, "Acme Inc", items[0].Organization)
	assert.Equal(t, "Austin, TX", items[0].Location)
	assert.Equal(t, "indeed", items[0].Source)
	assert.Equal(t, "Great role", items[0].Metadata["description"])
	require.NotNil(t, items[0].PostedAt)
	assert.True(t, items[1].Remote)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestFeed_Atom(t *testing.T) {
	srv := serve(t, map[string]string{
		"/atom": `<feed xmlns="http://www.w3.org/2005/Atom">
<entry><id>urn:1</id><title>Data Engineer - Globex</title>
<link rel="alternate" href="https://example.com/a/1"/><updated>2026-03-01T00:00:00Z</updated></entry>
</feed>`,
	})

	items, err := NewFeed(srv.Client(), "atom", srv.URL+"/atom").Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Data Engineer", items[0].Title)
	assert.Equal(t, "Globex", items[0].Organization)
	assert.Equal(t, "https://example.com/a/1", items[0].URL)
}

func TestFeed_UnknownFormat(t *testing.T) {
	srv := serve(t, map[string]string{"/x": `<html><body>nope</body></html>`})
	_, err := NewFeed(srv.Client(), "x", srv.URL+"/x").Search(context.Background(), domain.Query{})
	assert.ErrorIs(t, err, errUnknownFeed)
}

func TestFeed_Expand(t *testing.T) {
	f := NewFeed(nil, "indeed", "https://feeds.example/rss?q={query}&l={location}")
	got := f.expand(domain.Query{Keywords: []string{"go", "developer"}, Locations: []string{"New York"}})
	assert.Equal(t, "https://feeds.example/rss?q=go+developer&l=New+York", got)
}

func TestCareers_Search(t *testing.T) {
	srv := serve(t, map[string]string{
		"/careers": `<html><body>
<a href="https://boards.greenhouse.io/acme/jobs/42">Backend <em>Engineer</em></a>
<a href="https://boards.greenhouse.io/acme/jobs/42">Backend Engineer</a>
<a href="https://jobs.lever.co/acme/xyz">Remote SRE</a>
<a href="/about">About us</a>
<a href="mailto:jobs@acme.test">Email</a>
<a href="#top">Top</a>
</body></html>`,
	})

	c := NewCareers(srv.Client(), router.New(), []Page{{Organization: "Acme", URL: srv.URL + "/careers"}})
	items, err := c.Search(context.Background(), domain.Query{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Backend Engineer", items[0].Title)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/42", items[0].DestinationURL)
	assert.Equal(t, srv.URL+"/careers", items[0].URL)
	assert.Equal(t, "Acme", items[0].Organization)
	assert.True(t, items[1].Remote)
}

func TestCareers_AllPagesFail(t *testing.T) {
	srv := serve(t, nil)
	c := NewCareers(srv.Client(), router.New(), []Page{{URL: srv.URL + "/gone"}})
	_, err := c.Search(context.Background(), domain.Query{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestCollect_MaxResults(t *testing.T) {
	items := []domain.WorkItem{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	assert.Len(t, collect(domain.Query{MaxResults: 2}, items), 2)
	assert.Len(t, collect(domain.Query{}, items), 3)
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := serve(t, map[string]string{
		"/exact": strings.Repeat("a", maxBody),
		"/over":  strings.Repeat("a", maxBody+1),
	})

	body, err := fetch(context.Background(), srv.Client(), srv.URL+"/exact")
	require.NoError(t, err)
	assert.Len(t, body, maxBody)

	_, err = fetch(context.Background(), srv.Client(), srv.URL+"/over")
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "/over")
}
