package router

import (
	"testing"

	"github.com/cwygoda/pitcher/internal/domain"
)

func TestRouter_Route(t *testing.T) {
	r := New()

	tests := []struct {
		url  string
		want string
	}{
		{"https://boards.greenhouse.io/acme/jobs/123", "greenhouse"},
		{"https://jobs.lever.co/acme/abc-def", "lever"},
		{"https://acme.wd5.myworkdayjobs.com/en-US/External/job/123", "workday"},
		{"https://jobs.ashbyhq.com/acme/1234", "ashby"},
		{"https://jobs.smartrecruiters.com/Acme/743999", "smartrecruiters"},
		{"https://acme.bamboohr.com/careers/42", "bamboohr"},
		{"https://acme.applytojob.com/apply/xyz", "jazzhr"},
		{"https://careers-acme.icims.com/jobs/1/job", "icims"},
		{"https://acme.taleo.net/careersection/2/jobdetail.ftl", "taleo"},
		{"https://www.clearancejobs.com/job/123", "clearancejobs"},
		{"https://www.dice.com/job-detail/abc", "dice"},
		{"https://www.indeed.com/viewjob?jk=1", "indeed"},
		{"https://www.linkedin.com/jobs/view/1", "linkedin"},
		{"https://www.ziprecruiter.com/c/Acme/Job/x", "ziprecruiter"},
		{"HTTPS://BOARDS.GREENHOUSE.IO/ACME/JOBS/1", "greenhouse"},
		{"https://example.org/careers/1", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := r.Route(tt.url); got != tt.want {
				t.Errorf("Route(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestRouter_IsDirectCompletionURL(t *testing.T) {
	r := New()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://boards.greenhouse.io/acme/jobs/123", true},
		{"https://jobs.lever.co/acme/abc", true},
		{"https://www.clearancejobs.com/job/99", true},
		{"https://careers.acme.com/jobs?q=go", false},
		{"https://acme.com/careers?search=engineer", false},
		{"https://www.indeed.com/jobs?keywords=go", false},
		{"https://acme.com/search?q=go", false},
		{"https://acme.wd1.myworkdayjobs.com/job/1", true},
		{"https://example.org/apply", false},
		// allow wins over deny
		{"https://jobs.lever.co/acme/abc/search?x=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := r.IsDirectCompletionURL(tt.url); got != tt.want {
				t.Errorf("IsDirectCompletionURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestRouter_Register(t *testing.T) {
	r := New()

	if err := r.Register(`careers\.acme\.com`, "acme", CategoryComplexForm, 15); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := r.Route("https://careers.acme.com/job/1"); got != "acme" {
		t.Errorf("Route() = %q, want acme", got)
	}
	if got := r.Strategy("acme"); got.Priority != 15 || got.Category != CategoryComplexForm {
		t.Errorf("Strategy() = %+v", got)
	}

	// Registered routes take precedence over the built-in table.
	if err := r.Register(`greenhouse\.io/special`, "special", "", 0); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := r.Route("https://boards.greenhouse.io/special/jobs/1"); got != "special" {
		t.Errorf("Route() = %q, want special", got)
	}
	if got := r.Strategy("special").Category; got != CategoryUnknown {
		t.Errorf("Category = %q, want unknown", got)
	}

	if err := r.Register(`(`, "bad", "", 0); err == nil {
		t.Error("Register() expected error for invalid pattern")
	}
}

func TestRouter_Strategy_Unknown(t *testing.T) {
	r := New()
	s := r.Strategy("nope")
	if s.ID != Unknown || s.Priority != 99 {
		t.Errorf("Strategy(nope) = %+v", s)
	}
}

func TestRouter_Strategies_Ordered(t *testing.T) {
	got := New().Strategies()
	if got[0].ID != "greenhouse" {
		t.Errorf("first = %q, want greenhouse", got[0].ID)
	}
	if got[len(got)-1].ID != Unknown {
		t.Errorf("last = %q, want unknown", got[len(got)-1].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Priority < got[i-1].Priority {
			t.Fatalf("not ordered at %d: %+v", i, got)
		}
	}
}

func TestRouter_SortByPriority(t *testing.T) {
	r := New()
	items := []domain.WorkItem{
		{ID: "w", URL: "https://acme.wd1.myworkdayjobs.com/job/1"},
		{ID: "u1", URL: "https://example.org/1"},
		{ID: "g", URL: "https://example.org/2", DestinationURL: "https://boards.greenhouse.io/a/jobs/1"},
		{ID: "i", URL: "https://www.indeed.com/viewjob?jk=1"},
		{ID: "u2", URL: "https://example.org/3"},
	}

	got := r.SortByPriority(items)

	want := []string{"g", "i", "w", "u1", "u2"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, got[i].ID, id)
		}
	}
	if items[0].ID != "w" {
		t.Error("SortByPriority() mutated its input")
	}
}

func TestQuota(t *testing.T) {
	q := NewQuota(map[string]int{"lever": 2, "indeed": 0})

	for i := 0; i < 2; i++ {
		if !q.Take("lever") {
			t.Fatalf("Take(lever) #%d = false", i+1)
		}
	}
	if q.Take("lever") {
		t.Error("Take(lever) over limit = true")
	}
	if q.Used("lever") != 2 {
		t.Errorf("Used(lever) = %d, want 2", q.Used("lever"))
	}
	for i := 0; i < 5; i++ {
		if !q.Take("indeed") {
			t.Fatal("Take(indeed) should be unbounded")
		}
	}
}
