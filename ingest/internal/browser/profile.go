package browser

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordWeight scores a candidate when any of Words appears in its text.
// Each group contributes at most once.
type KeywordWeight struct {
	Words  []string `yaml:"words"`
	Weight int      `yaml:"weight"`
}

// Profile describes how to find carnival candidates on the registration
// site: which selectors to walk, how to score what they match, and which
// hosts and resource types to block during navigation. The compiled-in
// defaults fit the current site; a YAML file can override them without a
// rebuild when the site changes its markup.
type Profile struct {
	// Selectors, most specific first. Iteration order is preserved all the
	// way to the reconciler.
	Selectors []string `yaml:"selectors"`

	// Containers that indicate search results have rendered.
	Containers []string `yaml:"containers"`

	// SportTerms mark an element as belonging to the sport at all.
	SportTerms []string `yaml:"sport_terms"`

	Keywords []KeywordWeight `yaml:"keywords"`

	BlockedHosts         []string `yaml:"blocked_hosts"`
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	UserAgent string `yaml:"user_agent"`

	MinScore        int `yaml:"min_score"`
	MinTextLen      int `yaml:"min_text_len"`
	MaxTextLen      int `yaml:"max_text_len"`
	DedupePrefixLen int `yaml:"dedupe_prefix_len"`
	MaxCandidates   int `yaml:"max_candidates"`
}

// DefaultProfile returns the built-in scrape profile.
func DefaultProfile() *Profile {
	p := &Profile{
		Selectors: []string{
			".search-result", ".result-card", ".event-card", ".listing",
			".mat-card", ".card", "li.search-item", "ul.results > li",
			"table tbody tr",
			"article", "section div", "div", "span", "p",
		},
		Containers: []string{
			".search-results", ".results", "#results", ".event-list",
			"[role=list]", "main",
		},
		SportTerms: []string{
			"masters", "rugby", "league", "club", "tournament", "competition",
		},
		Keywords: []KeywordWeight{
			{Words: []string{"masters"}, Weight: 10},
			{Words: []string{"rugby", "league"}, Weight: 8},
			{Words: []string{"tournament", "championship", "competition"}, Weight: 7},
			{Words: []string{"club"}, Weight: 6},
			{Words: []string{"event"}, Weight: 5},
		},
		BlockedHosts: []string{
			"google-analytics.com", "googletagmanager.com", "doubleclick.net",
			"facebook.net", "facebook.com", "hotjar.com", "segment.io",
			"mixpanel.com", "clarity.ms",
		},
		BlockedResourceTypes: []string{"fonts", "media"},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}
	p.applyDefaults()
	return p
}

func (p *Profile) applyDefaults() {
	if p.MinScore <= 0 {
		p.MinScore = 5
	}
	if p.MinTextLen <= 0 {
		p.MinTextLen = 20
	}
	if p.MaxTextLen <= 0 {
		p.MaxTextLen = 5000
	}
	if p.DedupePrefixLen <= 0 {
		p.DedupePrefixLen = 150
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = 50
	}
}

// LoadProfile reads a YAML scrape profile. Fields left empty in the file
// fall back to their defaults.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("browser: read profile: %w", err)
	}
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("browser: parse profile: %w", err)
	}
	p.applyDefaults()
	return p, nil
}
