package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// navStrategy is one ordered procedure for reaching a loaded,
// content-bearing page. Strategies are tried strictly in order; the first
// whose navigation succeeds and whose extraction yields at least one
// candidate wins.
type navStrategy struct {
	name     string
	navigate func(ctx context.Context, page *rod.Page) error
}

func (s *Scraper) strategies() []navStrategy {
	return []navStrategy{
		{name: "comprehensive", navigate: s.navComprehensive},
		{name: "step-by-step", navigate: s.navStepByStep},
		{name: "direct", navigate: s.navDirect},
	}
}

// navComprehensive navigates and then walks five waiting stages: page
// structure, JS initialisation, dynamic-content stability, search-results
// appearance, and a final content validation.
func (s *Scraper) navComprehensive(ctx context.Context, page *rod.Page) error {
	p := page.Context(ctx)

	if err := p.Navigate(s.cfg.SourceURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	if err := p.WaitIdle(30 * time.Second); err != nil {
		s.cfg.Logger.Debug("browser: network never idled", "error", err)
	}

	// Stage 1: page structure.
	if err := pollTrue(ctx, p, `() => document.querySelectorAll('*').length >= 50`,
		time.Second, 30*time.Second); err != nil {
		return fmt.Errorf("structure wait: %w", err)
	}

	// Stage 2: JS initialisation.
	if err := pollTrue(ctx, p, `() =>
		document.querySelectorAll('a, button, input, select').length >= 5 &&
		(document.body.innerText || '').length >= 500 &&
		document.querySelectorAll('script').length > 0`,
		time.Second, 30*time.Second); err != nil {
		return fmt.Errorf("js init wait: %w", err)
	}

	// Stage 3: dynamic-content stability.
	if err := waitStable(ctx, p); err != nil {
		return fmt.Errorf("stability wait: %w", err)
	}

	// Stage 4: search results.
	if err := s.waitResults(ctx, p); err != nil {
		return fmt.Errorf("results wait: %w", err)
	}

	// Stage 5: final validation.
	if err := pollTrue(ctx, p, meaningfulContentJS, time.Second, 10*time.Second); err != nil {
		return fmt.Errorf("content validation: %w", err)
	}

	return nil
}

// navStepByStep warms up on the site root before hitting the target URL,
// which defeats naive first-visit bot walls, then stabilises content.
func (s *Scraper) navStepByStep(ctx context.Context, page *rod.Page) error {
	p := page.Context(ctx)

	if root := s.siteRoot(); root != s.cfg.SourceURL {
		if err := p.Navigate(root); err != nil {
			return fmt.Errorf("navigate root: %w", err)
		}
		if err := p.WaitLoad(); err != nil {
			s.cfg.Logger.Debug("browser: root load incomplete", "error", err)
		}
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return err
		}
	}

	if err := p.Navigate(s.cfg.SourceURL); err != nil {
		return fmt.Errorf("navigate target: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}

	return waitStable(ctx, p)
}

// navDirect is the last resort: navigate, give the page 30 seconds, and
// poll for any meaningful content.
func (s *Scraper) navDirect(ctx context.Context, page *rod.Page) error {
	p := page.Context(ctx)

	if err := p.Navigate(s.cfg.SourceURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		s.cfg.Logger.Debug("browser: load incomplete", "error", err)
	}

	return pollTrue(ctx, p, meaningfulContentJS, 2*time.Second, 30*time.Second)
}

// meaningfulContentJS accepts a page with a substantial body and enough
// structural elements to plausibly hold search results.
const meaningfulContentJS = `() =>
	(document.body.innerText || '').length > 2000 &&
	document.querySelectorAll('div, section, article, li, tr').length >= 30`

// waitStable samples the body text length every 3 seconds and succeeds
// once three consecutive samples are unchanged after the length has
// exceeded 1000 chars.
func waitStable(ctx context.Context, page *rod.Page) error {
	const (
		sampleEvery = 3 * time.Second
		maxWait     = 60 * time.Second
	)
	deadline := time.Now().Add(maxWait)

	prev, unchanged := -1, 0
	for time.Now().Before(deadline) {
		n, err := evalInt(page, `() => (document.body.innerText || '').length`)
		if err != nil {
			return err
		}
		if n > 1000 && n == prev {
			unchanged++
			if unchanged >= 2 { // three equal samples: initial + two repeats
				return nil
			}
		} else {
			unchanged = 0
		}
		prev = n
		if err := sleepCtx(ctx, sampleEvery); err != nil {
			return err
		}
	}
	return fmt.Errorf("content never stabilised")
}

// waitResults waits for a known results container to be visible, then for
// at least three elements whose text mentions the sport.
func (s *Scraper) waitResults(ctx context.Context, page *rod.Page) error {
	containers := jsStringArray(s.cfg.Profile.Containers)
	terms := jsStringArray(s.cfg.Profile.SportTerms)

	containerJS := `() => {
		const sels = ` + containers + `;
		return sels.some(sel => {
			const el = document.querySelector(sel);
			return el && el.offsetParent !== null;
		});
	}`
	if err := pollTrue(ctx, page, containerJS, time.Second, 30*time.Second); err != nil {
		return fmt.Errorf("no results container: %w", err)
	}

	matchesJS := `() => {
		const terms = ` + terms + `;
		let n = 0;
		for (const el of document.querySelectorAll('div, li, tr, article, section')) {
			const t = (el.innerText || '').toLowerCase();
			if (terms.some(term => t.includes(term))) {
				n++;
				if (n >= 3) return true;
			}
		}
		return false;
	}`
	return pollTrue(ctx, page, matchesJS, time.Second, 30*time.Second)
}

// pollTrue evaluates a boolean JS expression until it holds or the
// timeout elapses.
func pollTrue(ctx context.Context, page *rod.Page, js string, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		res, err := page.Eval(js)
		if err != nil {
			return err
		}
		if res.Value.Bool() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition never held")
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

func evalInt(page *rod.Page, js string) (int, error) {
	res, err := page.Eval(js)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func jsStringArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
