package parse

import (
	"regexp"
	"strings"
	"time"
)

// SentinelTitle is returned when no line qualifies as a title.
const SentinelTitle = "Masters Event"

// Title returns the best title line: the first line of length 10–100 that
// mentions "masters" without the noise words "register" or "location".
// Failing that, the first line of plausible length; failing that, the
// sentinel.
func Title(lines []string) string {
	for _, l := range lines {
		n := len(l)
		if n < 10 || n > 100 {
			continue
		}
		lower := strings.ToLower(l)
		if !strings.Contains(lower, "masters") {
			continue
		}
		if strings.Contains(lower, "register") || strings.Contains(lower, "location") {
			continue
		}
		return l
	}
	for _, l := range lines {
		if n := len(l); n > 10 && n < 100 {
			return l
		}
	}
	return SentinelTitle
}

// Titles sometimes carry their date inline, bracketed or as a trailing
// token: "Mudgee Masters (15 July 2025)" or "Mudgee Masters 2025-07-15".
var titleDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([^)]{4,40})\)\s*$`),
	regexp.MustCompile(`[-–]\s*(\d{4}-\d{2}-\d{2})\s*$`),
	regexp.MustCompile(`\s(\d{1,2}[/-]\d{1,2}[/-]\d{4})\s*$`),
	regexp.MustCompile(`\s(\d{4}-\d{2}-\d{2})\s*$`),
}

// TitleDate extracts an embedded date from a title and strips the token.
// Returns ok=false when the title carries no parseable date.
func TitleDate(title string) (string, time.Time, bool) {
	for _, pat := range titleDatePatterns {
		m := pat.FindStringSubmatchIndex(title)
		if m == nil {
			continue
		}
		token := title[m[2]:m[3]]
		d, ok := parseDateToken(token)
		if !ok {
			continue
		}
		clean := strings.TrimSpace(title[:m[0]] + title[m[1]:])
		clean = strings.TrimRight(clean, " -–")
		return clean, d, true
	}
	return title, time.Time{}, false
}
