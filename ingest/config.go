package ingest

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Config carries every knob the pipeline reads, populated from flags or
// environment variables.
//
// UseMockData is a pointer so an unset value can fall back to the
// environment-dependent default: mock data on in development, off
// everywhere else.
type Config struct {
	SyncEnabled    bool   `long:"sync-enabled" env:"SYNC_ENABLED" description:"Master on/off switch for the sync pipeline"`
	UseMockData    *bool  `long:"use-mock-data" env:"USE_MOCK_DATA" description:"Generate synthetic events instead of scraping"`
	EnableScraping bool   `long:"enable-scraping" env:"ENABLE_SCRAPING" description:"Allow the headless browser to run"`
	SourceURL      string `long:"source-url" env:"SOURCE_URL" description:"Registration site URL to scrape"`

	RequestTimeoutMs int  `long:"request-timeout-ms" env:"REQUEST_TIMEOUT_MS" default:"180000" description:"Browser navigation timeout in milliseconds"`
	RetryAttempts    int  `long:"retry-attempts" env:"RETRY_ATTEMPTS" default:"3" description:"Bootstrap store readiness retries"`
	RequestDelayMs   int  `long:"request-delay-ms" env:"REQUEST_DELAY_MS" default:"2000" description:"Pacing delay between reconciled events in milliseconds"`
	Headless         bool `long:"headless" env:"HEADLESS" description:"Run the browser headless"`

	Environment string `long:"environment" env:"ENVIRONMENT" default:"development" description:"Deployment environment name"`
	DBPath      string `long:"db-path" env:"DB_PATH" default:"carnivalsync.db" description:"SQLite database path"`
	HTTPAddr    string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"Admin HTTP listen address"`
	AdminToken  string `long:"admin-token" env:"ADMIN_TOKEN" description:"Bearer token for the admin endpoints (open when unset)"`
	LogLevel    string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`

	ScrapeProfile string `long:"scrape-profile" env:"SCRAPE_PROFILE" description:"Optional YAML file overriding the scrape profile"`
	MCPStdio      bool   `long:"mcp" env:"MCP_STDIO" description:"Serve the admin tools over MCP on stdio"`

	NotifyWebhookURL    string `long:"notify-webhook-url" env:"NOTIFY_WEBHOOK_URL" description:"Webhook URL for outbound notifications"`
	NotifyWebhookSecret string `long:"notify-webhook-secret" env:"NOTIFY_WEBHOOK_SECRET" description:"HMAC secret for webhook signatures"`
}

// LoadConfig parses flags and environment into a Config. The zero flag
// set means environment variables alone drive it, which is how the
// container deployment works.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{EnableScraping: true, Headless: true}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

// Mock reports whether this deployment generates synthetic events. Unset
// resolves to true only in development.
func (c *Config) Mock() bool {
	if c.UseMockData != nil {
		return *c.UseMockData
	}
	return c.Environment == "development"
}

// Production reports whether the freshness gate on the bootstrap trigger
// applies.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Misconfigured reports the one rejected combination: scraping is the
// only data source but no URL was provided.
func (c *Config) Misconfigured() bool {
	return !c.Mock() && c.EnableScraping && c.SourceURL == ""
}

// RequestTimeout returns the navigation timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// RequestDelay returns the inter-event pacing as a duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}
