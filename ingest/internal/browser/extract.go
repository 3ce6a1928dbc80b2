package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-rod/rod"

	"github.com/mastersrl/carnivalsync/ingest/internal/parse"
)

// rawCandidate is the shape returned by the in-page extraction script.
type rawCandidate struct {
	Text string `json:"text"`
	HTML string `json:"html"`
	Href string `json:"href"`
}

// extractJS walks the selector list in order, preserving DOM document
// order within each selector, and returns one entry per element not
// already claimed by an earlier selector. Inner HTML is bounded so a
// pathological element can't blow up the transfer.
const extractJS = `(selectors) => {
	const out = [];
	const seen = new Set();
	for (const sel of selectors) {
		let els;
		try { els = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of els) {
			if (seen.has(el)) continue;
			seen.add(el);
			const text = (el.innerText || '').trim();
			if (!text) continue;
			const link = el.querySelector('a[href]');
			out.push({
				text: text,
				html: (el.innerHTML || '').slice(0, 8000),
				href: link ? link.href : (el.href || ''),
			});
		}
	}
	return JSON.stringify(out);
}`

// extract runs the in-page script and decodes the raw candidates.
func (s *Scraper) extract(ctx context.Context, page *rod.Page) ([]parse.Candidate, error) {
	res, err := page.Context(ctx).Eval(extractJS, s.cfg.Profile.Selectors)
	if err != nil {
		return nil, fmt.Errorf("extract eval: %w", err)
	}

	var raw []rawCandidate
	if err := json.Unmarshal([]byte(res.Value.Str()), &raw); err != nil {
		return nil, fmt.Errorf("extract decode: %w", err)
	}

	cands := make([]parse.Candidate, 0, len(raw))
	for _, r := range raw {
		cands = append(cands, parse.Candidate{Text: r.Text, Markup: r.HTML, Href: r.Href})
	}
	return cands, nil
}

// rank scores, filters, deduplicates and orders candidates:
// keyword-weighted relevance, score and length gates, dedupe on the first
// 150 lower-cased chars, stable sort by score so selector/DOM order
// breaks ties, top N kept.
func rank(cands []parse.Candidate, p *Profile) []parse.Candidate {
	kept := make([]parse.Candidate, 0, len(cands))
	seen := make(map[string]bool, len(cands))

	for _, c := range cands {
		if n := len(c.Text); n <= p.MinTextLen || n >= p.MaxTextLen {
			continue
		}
		c.Score = scoreCandidate(c, p)
		if c.Score < p.MinScore {
			continue
		}

		key := dedupeKey(c.Text, p.DedupePrefixLen)
		if seen[key] {
			continue
		}
		seen[key] = true

		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	if len(kept) > p.MaxCandidates {
		kept = kept[:p.MaxCandidates]
	}
	return kept
}

// scoreCandidate computes the keyword relevance score. Each keyword group
// counts once however many of its words appear.
func scoreCandidate(c parse.Candidate, p *Profile) int {
	text := strings.ToLower(c.Text)
	score := 0

	for _, kw := range p.Keywords {
		for _, w := range kw.Words {
			if strings.Contains(text, w) {
				score += kw.Weight
				break
			}
		}
	}

	if email, phone := parse.ContactDetails(c.Text); email != "" || phone != "" {
		score += 4
	}
	if parse.State(c.Text) != "" {
		score += 3
	}
	if hasLink(c) {
		score += 2
	}

	return score
}

func hasLink(c parse.Candidate) bool {
	if c.Href != "" {
		return true
	}
	lower := strings.ToLower(c.Markup)
	return strings.Contains(lower, "<a ") || strings.Contains(lower, "<button")
}

func dedupeKey(text string, prefixLen int) string {
	lower := strings.ToLower(text)
	if len(lower) > prefixLen {
		lower = lower[:prefixLen]
	}
	return lower
}
