package router

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/cwygoda/pitcher/internal/domain"
)

// Unknown is the strategy id of a target no route matches.
const Unknown = "unknown"

// Category groups strategies by how much of the flow a site exposes.
type Category string

const (
	CategoryDirectApply Category = "direct-apply"
	CategoryNativeFlow  Category = "native-flow"
	CategoryComplexForm Category = "complex-form"
	CategoryUnknown     Category = "unknown"
)

// Strategy describes one handling strategy. Lower priority runs first.
type Strategy struct {
	ID              string   `json:"id"`
	Category        Category `json:"category"`
	Priority        int      `json:"priority"`
	ExpectedSuccess float64  `json:"expected_success"`
}

type route struct {
	pattern  *regexp.Regexp
	strategy string
}

// Router maps target URLs to strategy ids through an ordered pattern table.
// The first matching pattern wins.
type Router struct {
	mu         sync.RWMutex
	routes     []route
	strategies map[string]Strategy
}

var builtinStrategies = []Strategy{
	{ID: "greenhouse", Category: CategoryDirectApply, Priority: 1, ExpectedSuccess: 0.75},
	{ID: "lever", Category: CategoryDirectApply, Priority: 2, ExpectedSuccess: 0.70},
	{ID: "ashby", Category: CategoryDirectApply, Priority: 3, ExpectedSuccess: 0.65},
	{ID: "smartrecruiters", Category: CategoryDirectApply, Priority: 4, ExpectedSuccess: 0.60},
	{ID: "bamboohr", Category: CategoryDirectApply, Priority: 5, ExpectedSuccess: 0.55},
	{ID: "clearancejobs", Category: CategoryDirectApply, Priority: 6, ExpectedSuccess: 0.50},
	{ID: "jazzhr", Category: CategoryDirectApply, Priority: 7, ExpectedSuccess: 0.50},
	{ID: "indeed", Category: CategoryNativeFlow, Priority: 10, ExpectedSuccess: 0.45},
	{ID: "linkedin", Category: CategoryNativeFlow, Priority: 11, ExpectedSuccess: 0.40},
	{ID: "ziprecruiter", Category: CategoryNativeFlow, Priority: 12, ExpectedSuccess: 0.35},
	{ID: "dice", Category: CategoryNativeFlow, Priority: 13, ExpectedSuccess: 0.35},
	{ID: "workday", Category: CategoryComplexForm, Priority: 20, ExpectedSuccess: 0.25},
	{ID: "taleo", Category: CategoryComplexForm, Priority: 21, ExpectedSuccess: 0.20},
	{ID: "sap", Category: CategoryComplexForm, Priority: 22, ExpectedSuccess: 0.15},
	{ID: "icims", Category: CategoryComplexForm, Priority: 23, ExpectedSuccess: 0.15},
}

// Most specific first.
var builtinRoutes = []struct{ pattern, strategy string }{
	{`boards\.greenhouse\.io`, "greenhouse"},
	{`greenhouse\.io`, "greenhouse"},
	{`jobs\.lever\.co`, "lever"},
	{`lever\.co`, "lever"},
	{`wd\d+\.myworkdayjobs\.com`, "workday"},
	{`\.workday\.com`, "workday"},
	{`jobs\.ashbyhq\.com`, "ashby"},
	{`jobs\.smartrecruiters\.com`, "smartrecruiters"},
	{`\.bamboohr\.com/careers`, "bamboohr"},
	{`\.applytojob\.com`, "jazzhr"},
	{`jazzhr\.com`, "jazzhr"},
	{`\.icims\.com`, "icims"},
	{`\.taleo\.net`, "taleo"},
	{`successfactors\.(com|eu)`, "sap"},
	{`clearancejobs\.com`, "clearancejobs"},
	{`dice\.com/job-detail`, "dice"},
	{`indeed\.com/viewjob`, "indeed"},
	{`indeed\.com`, "indeed"},
	{`linkedin\.com/jobs`, "linkedin"},
	{`ziprecruiter\.com`, "ziprecruiter"},
}

// A match here means the URL is a completion form, checked before denyDirect.
var allowDirect = []*regexp.Regexp{
	regexp.MustCompile(`greenhouse\.io/[^/]+/jobs/\d+`),
	regexp.MustCompile(`jobs\.lever\.co/[^/]+/[^/]+`),
	regexp.MustCompile(`jobs\.ashbyhq\.com/[^/]+`),
	regexp.MustCompile(`clearancejobs\.com/job/\d+`),
	regexp.MustCompile(`dice\.com/job-detail`),
}

var denyDirect = []*regexp.Regexp{
	regexp.MustCompile(`careers\..+\?`),
	regexp.MustCompile(`/careers\?search=`),
	regexp.MustCompile(`/jobs\?keywords=`),
	regexp.MustCompile(`/search\?`),
}

// New creates a router loaded with the built-in table.
func New() *Router {
	r := &Router{strategies: make(map[string]Strategy, len(builtinStrategies)+1)}
	for _, s := range builtinStrategies {
		r.strategies[s.ID] = s
	}
	r.strategies[Unknown] = Strategy{ID: Unknown, Category: CategoryUnknown, Priority: 99}
	for _, br := range builtinRoutes {
		r.routes = append(r.routes, route{pattern: regexp.MustCompile(br.pattern), strategy: br.strategy})
	}
	return r
}

// Register puts a route ahead of the built-in table. A strategy id the
// router does not know yet is added with the given category and priority.
func (r *Router) Register(pattern, strategy string, category Category, priority int) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compile route %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append([]route{{pattern: re, strategy: strategy}}, r.routes...)
	if _, ok := r.strategies[strategy]; !ok {
		if category == "" {
			category = CategoryUnknown
		}
		r.strategies[strategy] = Strategy{ID: strategy, Category: category, Priority: priority}
	}
	return nil
}

// Route returns the strategy id for url, or Unknown.
func (r *Router) Route(url string) string {
	lower := strings.ToLower(url)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if rt.pattern.MatchString(lower) {
			return rt.strategy
		}
	}
	return Unknown
}

// Strategy returns the descriptor for id; unregistered ids map to Unknown.
func (r *Router) Strategy(id string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[id]; ok {
		return s
	}
	return r.strategies[Unknown]
}

// Strategies returns every known strategy ordered by priority.
func (r *Router) Strategies() []Strategy {
	r.mu.RLock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Strategy) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// IsDirectCompletionURL reports whether url is itself a completion form
// rather than a listing or search page. Allow patterns are checked before
// deny patterns, so a URL matching both counts as direct.
func (r *Router) IsDirectCompletionURL(url string) bool {
	lower := strings.ToLower(url)
	for _, re := range allowDirect {
		if re.MatchString(lower) {
			return true
		}
	}
	for _, re := range denyDirect {
		if re.MatchString(lower) {
			return false
		}
	}
	return r.Route(url) != Unknown
}

// SortByPriority returns items stable-sorted by the priority of their
// strategy, so high-yield strategies are attempted first.
func (r *Router) SortByPriority(items []domain.WorkItem) []domain.WorkItem {
	type keyed struct {
		item     domain.WorkItem
		priority int
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		ks[i] = keyed{item: it, priority: r.Strategy(r.Route(it.Target())).Priority}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int { return a.priority - b.priority })
	out := make([]domain.WorkItem, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}
