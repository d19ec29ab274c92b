// Package browser implements the execution driver on a Chrome instance
// controlled through Rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/cwygoda/pitcher/internal/domain"
)

var errClosed = errors.New("browser: factory is closed")

// Config configures the Chrome instance shared by every session.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string
	Headless  bool
	// EvidenceDir receives screenshots. Empty disables them.
	EvidenceDir    string
	ViewportWidth  int
	ViewportHeight int
}

func (c *Config) defaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1366
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 900
	}
}

// Factory opens one page per attempt run on a shared browser.
type Factory struct {
	cfg     Config
	log     *zap.Logger
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewFactory creates a factory. Chrome is started lazily on the first Open.
func NewFactory(cfg Config, log *zap.Logger) *Factory {
	cfg.defaults()
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errClosed
	}
	if f.browser != nil {
		return f.browser, nil
	}

	wsURL := f.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(f.cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		f.lnch = l
		f.log.Info("launched local chrome", zap.String("url", wsURL), zap.Bool("headless", f.cfg.Headless))
	} else {
		f.log.Info("connecting to remote chrome", zap.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.browser = b
	return b, nil
}

// Open implements domain.DriverFactory. A fresh session runs in its own
// incognito context so no cookies carry over from earlier runs.
func (f *Factory) Open(ctx context.Context, opts domain.DriverOptions) (domain.Driver, error) {
	b, err := f.connect()
	if err != nil {
		return nil, err
	}

	var incognito *rod.Browser
	target := b
	if opts.FreshSession {
		incognito, err = b.Incognito()
		if err != nil {
			return nil, fmt.Errorf("browser: incognito context: %w", err)
		}
		target = incognito
	}

	page, err := target.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		if incognito != nil {
			_ = incognito.Close()
		}
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             f.cfg.ViewportWidth,
		Height:            f.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		f.log.Warn("set viewport failed", zap.Error(err))
	}

	if f.cfg.EvidenceDir != "" {
		if err := os.MkdirAll(f.cfg.EvidenceDir, 0o755); err != nil {
			f.log.Warn("create evidence dir failed", zap.Error(err))
		}
	}

	return &Driver{
		page:        page,
		incognito:   incognito,
		opts:        opts,
		evidenceDir: f.cfg.EvidenceDir,
		sleep:       sleepCtx,
	}, nil
}

// Close shuts down the browser and, if launched locally, Chrome itself.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Kill()
		f.lnch = nil
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
