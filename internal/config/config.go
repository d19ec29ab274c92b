package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/cwygoda/pitcher/internal/adapter/browser"
	"github.com/cwygoda/pitcher/internal/domain"
	"github.com/cwygoda/pitcher/internal/evaluator"
	"github.com/cwygoda/pitcher/internal/router"
	"github.com/cwygoda/pitcher/internal/speed"
	"github.com/cwygoda/pitcher/internal/strategy"
)

// Config holds application configuration.
type Config struct {
	DBPath    string                   `toml:"db_path" validate:"required"`
	Campaign  Campaign                 `toml:"campaign"`
	Discovery Discovery                `toml:"discovery"`
	Sources   []Source                 `toml:"sources" validate:"dive"`
	Retry     Retry                    `toml:"retry"`
	Profiles  map[string]RetryOverride `toml:"profiles" validate:"dive"`
	Routes    []Route                  `toml:"routes" validate:"dive"`
	Variants  []Variant                `toml:"variants" validate:"dive"`
	Targets   evaluator.Targets        `toml:"targets"`
	Applicant Applicant                `toml:"applicant"`
	Browser   Browser                  `toml:"browser"`
	HTTP      HTTP                     `toml:"http"`
	Log       Log                      `toml:"log"`
}

type Campaign struct {
	Name              string        `toml:"name"`
	Capacity          int           `toml:"capacity" validate:"gte=1"`
	AutoSubmit        bool          `toml:"auto_submit"`
	StepTimeout       time.Duration `toml:"step_timeout" validate:"gt=0"`
	SolveTimeout      time.Duration `toml:"solve_timeout" validate:"gt=0"`
	SnapshotInterval  time.Duration `toml:"snapshot_interval" validate:"gte=0"`
	MinSamples        int           `toml:"min_samples" validate:"gte=1"`
	DefaultVariant    string        `toml:"default_variant" validate:"required"`
	SuccessIndicators []string      `toml:"success_indicators"`
}

type Discovery struct {
	Keywords      []string      `toml:"keywords" validate:"min=1"`
	Locations     []string      `toml:"locations"`
	RemoteOnly    bool          `toml:"remote_only"`
	MaxResults    int           `toml:"max_results" validate:"gte=0"`
	SourceTimeout time.Duration `toml:"source_timeout" validate:"gt=0"`
	HTTPTimeout   time.Duration `toml:"http_timeout" validate:"gt=0"`
}

// Query builds the discovery query.
func (d Discovery) Query() domain.Query {
	return domain.Query{
		Keywords:   d.Keywords,
		Locations:  d.Locations,
		RemoteOnly: d.RemoteOnly,
		MaxResults: d.MaxResults,
	}
}

// Source is one [[sources]] entry. Which fields apply depends on Type.
type Source struct {
	Type    string `toml:"type" validate:"oneof=greenhouse lever remotive rss careers"`
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
	// Boards lists Greenhouse board tokens or Lever company slugs.
	Boards []string `toml:"boards" validate:"required_if=Type greenhouse,required_if=Type lever"`
	// URL is an RSS feed template with {query} and {location} placeholders.
	URL   string `toml:"url" validate:"required_if=Type rss"`
	Pages []Page `toml:"pages" validate:"required_if=Type careers,dive"`
}

type Page struct {
	Organization string `toml:"organization"`
	URL          string `toml:"url" validate:"required,url"`
}

type Retry struct {
	MaxAttempts int           `toml:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `toml:"base_delay" validate:"gte=0"`
	Exponent    float64       `toml:"exponent" validate:"gte=1"`
	MaxDelay    time.Duration `toml:"max_delay" validate:"gtefield=BaseDelay"`
	JitterMax   time.Duration `toml:"jitter_max" validate:"gte=0"`
}

// Profile returns the base strategy profile with the retry parameters applied.
func (r Retry) Profile() strategy.Profile {
	p := strategy.Default()
	p.MaxAttempts = r.MaxAttempts
	p.BaseDelay = r.BaseDelay
	p.Exponent = r.Exponent
	p.MaxDelay = r.MaxDelay
	p.JitterMax = r.JitterMax
	return p
}

// RetryOverride replaces [retry] values for one strategy, keyed by
// strategy id under [profiles.<strategy>]. Zero fields inherit.
type RetryOverride struct {
	MaxAttempts int           `toml:"max_attempts" validate:"gte=0"`
	BaseDelay   time.Duration `toml:"base_delay" validate:"gte=0"`
	Exponent    float64       `toml:"exponent" validate:"omitempty,gte=1"`
	MaxDelay    time.Duration `toml:"max_delay" validate:"gte=0"`
	JitterMax   time.Duration `toml:"jitter_max" validate:"gte=0"`
}

func (o RetryOverride) apply(p strategy.Profile) strategy.Profile {
	if o.MaxAttempts > 0 {
		p.MaxAttempts = o.MaxAttempts
	}
	if o.BaseDelay > 0 {
		p.BaseDelay = o.BaseDelay
	}
	if o.Exponent > 0 {
		p.Exponent = o.Exponent
	}
	if o.MaxDelay > 0 {
		p.MaxDelay = o.MaxDelay
	}
	if o.JitterMax > 0 {
		p.JitterMax = o.JitterMax
	}
	return p
}

// Route is an extra routing rule, checked before the built-in table.
type Route struct {
	Pattern  string `toml:"pattern" validate:"required"`
	Strategy string `toml:"strategy" validate:"required"`
	Category string `toml:"category" validate:"omitempty,oneof=direct-apply native-flow complex-form unknown"`
	Priority int    `toml:"priority" validate:"gte=0"`
	// Quota bounds attempts per run for the strategy. Zero is unlimited.
	Quota int `toml:"quota" validate:"gte=0"`
}

type Variant struct {
	Name            string        `toml:"name" validate:"required"`
	TargetPerMinute int           `toml:"target_per_minute" validate:"gte=1"`
	Interval        time.Duration `toml:"interval" validate:"gte=0"`
	TypingWPM       int           `toml:"typing_wpm" validate:"gte=0"`
	Click           speed.Range   `toml:"click"`
	Scroll          speed.Range   `toml:"scroll"`
	Mouse           speed.Range   `toml:"mouse"`
	BurstSize       int           `toml:"burst_size" validate:"gte=1"`
}

type Applicant struct {
	FirstName  string            `toml:"first_name"`
	LastName   string            `toml:"last_name"`
	Email      string            `toml:"email" validate:"omitempty,email"`
	Phone      string            `toml:"phone"`
	Location   string            `toml:"location"`
	LinkedIn   string            `toml:"linkedin" validate:"omitempty,url"`
	Website    string            `toml:"website" validate:"omitempty,url"`
	ResumePath string            `toml:"resume_path"`
	Answers    map[string]string `toml:"answers"`
}

type Browser struct {
	RemoteURL      string `toml:"remote_url"`
	Headless       bool   `toml:"headless"`
	EvidenceDir    string `toml:"evidence_dir"`
	ViewportWidth  int    `toml:"viewport_width" validate:"gte=0"`
	ViewportHeight int    `toml:"viewport_height" validate:"gte=0"`
}

type HTTP struct {
	Port int `toml:"port" validate:"gte=0,lte=65535"`
}

type Log struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "pitcher", "pitcher.db")
}

// DefaultPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "pitcher", "config.toml")
}

// Default returns a configuration that validates without a file, apart
// from the discovery keywords.
func Default() *Config {
	prof := strategy.Default()
	return &Config{
		DBPath: DefaultDBPath(),
		Campaign: Campaign{
			Name:             "default",
			Capacity:         5,
			StepTimeout:      45 * time.Second,
			SolveTimeout:     2 * time.Minute,
			SnapshotInterval: time.Minute,
			MinSamples:       10,
			DefaultVariant:   speed.DefaultVariant,
		},
		Discovery: Discovery{
			MaxResults:    50,
			SourceTimeout: 30 * time.Second,
			HTTPTimeout:   30 * time.Second,
		},
		Retry: Retry{
			MaxAttempts: prof.MaxAttempts,
			BaseDelay:   prof.BaseDelay,
			Exponent:    prof.Exponent,
			MaxDelay:    prof.MaxDelay,
			JitterMax:   prof.JitterMax,
		},
		Targets: evaluator.DefaultTargets(),
		Browser: Browser{Headless: true},
		HTTP:    HTTP{Port: 8080},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load reads the config file at path over the defaults, then applies env
// overrides. An empty path means PITCHER_CONFIG or DefaultPath; a missing
// file is only an error when the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv("PITCHER_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath()
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// Env overrides
	if port := os.Getenv("PITCHER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("PITCHER_PORT: %w", err)
		}
		cfg.HTTP.Port = p
	}
	if db := os.Getenv("PITCHER_DB"); db != "" {
		cfg.DBPath = db
	}

	return cfg, nil
}

// Validate checks the configuration after flags have been applied.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// VariantSet returns the configured variants, or the built-in catalog.
func (c *Config) VariantSet() []speed.Variant {
	if len(c.Variants) == 0 {
		return speed.Catalog()
	}
	out := make([]speed.Variant, 0, len(c.Variants))
	for _, v := range c.Variants {
		out = append(out, speed.Variant{
			Name:            v.Name,
			TargetPerMinute: v.TargetPerMinute,
			Interval:        v.Interval,
			TypingWPM:       v.TypingWPM,
			Click:           v.Click,
			Scroll:          v.Scroll,
			Mouse:           v.Mouse,
			BurstSize:       v.BurstSize,
		})
	}
	return out
}

// Router builds the target router with the configured routes prepended.
// Routes are registered in reverse so the first entry is checked first.
func (c *Config) Router() (*router.Router, error) {
	r := router.New()
	for i := len(c.Routes) - 1; i >= 0; i-- {
		rt := c.Routes[i]
		if err := r.Register(rt.Pattern, rt.Strategy, router.Category(rt.Category), rt.Priority); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ProfileStore builds the strategy profile store: every strategy starts
// from [retry], and strategies under [profiles] get their overrides.
func (c *Config) ProfileStore() (*strategy.Store, error) {
	base := c.Retry.Profile()
	store := strategy.NewStore(base)
	for id, o := range c.Profiles {
		p := o.apply(base)
		if p.MaxDelay < p.BaseDelay {
			return nil, fmt.Errorf("profiles.%s: max_delay %s below base_delay %s", id, p.MaxDelay, p.BaseDelay)
		}
		store.Set(id, p)
	}
	return store, nil
}

// Quotas returns the per-strategy attempt limits.
func (c *Config) Quotas() map[string]int {
	q := make(map[string]int)
	for _, rt := range c.Routes {
		if rt.Quota > 0 {
			q[rt.Strategy] = rt.Quota
		}
	}
	return q
}

func (a Applicant) Domain() domain.Applicant {
	answers := make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		answers[k] = v
	}
	return domain.Applicant{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Phone:      a.Phone,
		Location:   a.Location,
		LinkedIn:   a.LinkedIn,
		Website:    a.Website,
		ResumePath: a.ResumePath,
		Answers:    answers,
	}
}

func (b Browser) Driver() browser.Config {
	return browser.Config{
		RemoteURL:      b.RemoteURL,
		Headless:       b.Headless,
		EvidenceDir:    b.EvidenceDir,
		ViewportWidth:  b.ViewportWidth,
		ViewportHeight: b.ViewportHeight,
	}
}
