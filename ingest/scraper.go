package ingest

import (
	"fmt"
	"log/slog"

	"github.com/mastersrl/carnivalsync/ingest/internal/browser"
)

// NewScraperFetcher builds the headless-browser fetcher from config,
// loading the optional YAML scrape-profile override when one is set.
func NewScraperFetcher(cfg *Config, logger *slog.Logger) (Fetcher, error) {
	profile := browser.DefaultProfile()
	if cfg.ScrapeProfile != "" {
		p, err := browser.LoadProfile(cfg.ScrapeProfile)
		if err != nil {
			return nil, fmt.Errorf("load scrape profile %s: %w", cfg.ScrapeProfile, err)
		}
		profile = p
	}

	return browser.NewScraper(browser.Config{
		SourceURL: cfg.SourceURL,
		Timeout:   cfg.RequestTimeout(),
		Headless:  cfg.Headless,
		Profile:   profile,
		Logger:    logger,
	}), nil
}
