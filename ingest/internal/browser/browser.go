// Package browser drives a headless Chrome via Rod to render the
// registration site's JavaScript-heavy search page and pull out carnival
// candidates.
//
// The driver tries an ordered list of navigation strategies, stopping at
// the first that yields at least one candidate; a run that exhausts every
// strategy produces an empty list, never an error. The browser, its
// launcher and the page are released on every exit path.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/mastersrl/carnivalsync/ingest/internal/parse"
)

// Config configures the Scraper.
type Config struct {
	// SourceURL is the search page to render. Required.
	SourceURL string

	// Timeout bounds each navigation. Default: 180s.
	Timeout time.Duration

	// Headless controls browser visibility; headful is only useful for
	// local debugging. Default: true (set via NewScraper).
	Headless bool

	// Profile overrides the built-in scrape profile.
	Profile *Profile

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 180 * time.Second
	}
	if c.Profile == nil {
		c.Profile = DefaultProfile()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scraper renders the registration site and extracts carnival candidates.
type Scraper struct {
	cfg Config
}

// NewScraper creates a Scraper. Headless defaults to true unless the
// config explicitly disables it.
func NewScraper(cfg Config) *Scraper {
	cfg.defaults()
	return &Scraper{cfg: cfg}
}

// Fetch renders the search page and returns ranked candidates. It never
// returns an error: every failure is logged and degrades to an empty
// list, which the run controller reports as a successful empty run.
func (s *Scraper) Fetch(ctx context.Context) []parse.Candidate {
	log := s.cfg.Logger

	b, cleanup, err := s.launch()
	if err != nil {
		log.Error("browser: launch failed", "error", err)
		return nil
	}
	defer cleanup()

	page, err := s.newPage(b)
	if err != nil {
		log.Error("browser: page setup failed", "error", err)
		return nil
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warn("browser: page close failed", "error", cerr)
		}
	}()

	for _, st := range s.strategies() {
		cands, err := s.attempt(ctx, page, st)
		if err != nil {
			log.Warn("browser: strategy failed", "strategy", st.name, "error", err)
			continue
		}
		if len(cands) > 0 {
			log.Info("browser: strategy succeeded",
				"strategy", st.name, "candidates", len(cands))
			return cands
		}
		log.Debug("browser: strategy yielded nothing", "strategy", st.name)
	}

	log.Warn("browser: all strategies exhausted", "url", s.cfg.SourceURL)
	return nil
}

// launch starts Chrome and connects Rod. The returned cleanup closes the
// browser and the launcher and never panics; cleanup failures are logged
// and swallowed.
func (s *Scraper) launch() (*rod.Browser, func(), error) {
	l := launcher.New().
		Headless(s.cfg.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1366,768")

	u, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}

	cleanup := func() {
		if cerr := b.Close(); cerr != nil {
			s.cfg.Logger.Warn("browser: close failed", "error", cerr)
		}
		l.Cleanup()
	}
	return b, cleanup, nil
}

// newPage creates a stealth page with the profile's user agent, the
// standard viewport, and request interception for blocked hosts and
// resource types.
func (s *Scraper) newPage(b *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: s.cfg.Profile.UserAgent,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1366,
		Height:            768,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: viewport: %w", err)
	}

	if err := applyRequestBlocking(page, s.cfg.Profile); err != nil {
		s.cfg.Logger.Warn("browser: request blocking failed", "error", err)
	}

	return page, nil
}

// attempt runs one navigation strategy and, on success, the shared
// extraction pass. Any error abandons the strategy.
func (s *Scraper) attempt(ctx context.Context, page *rod.Page, st navStrategy) (cands []parse.Candidate, err error) {
	defer func() {
		// Rod's Must-free API still panics inside some CDP paths; a
		// panicking strategy must not take down the run.
		if r := recover(); r != nil {
			cands, err = nil, fmt.Errorf("browser: strategy panic: %v", r)
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := st.navigate(navCtx, page); err != nil {
		return nil, err
	}

	raw, err := s.extract(navCtx, page)
	if err != nil {
		return nil, err
	}
	return rank(raw, s.cfg.Profile), nil
}

// siteRoot derives scheme://host from the source URL for the step-by-step
// strategy's warm-up visit.
func (s *Scraper) siteRoot() string {
	u, err := url.Parse(s.cfg.SourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s.cfg.SourceURL
	}
	return u.Scheme + "://" + u.Host
}
