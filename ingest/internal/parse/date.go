package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Dates before this year are treated as noise (footer copyrights, old
// results pages and the like).
const minEventYear = 2024

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	// "15 July 2025" or "July 15, 2025"
	longMonthRe = regexp.MustCompile(`(?i)\b(?:(\d{1,2})(?:st|nd|rd|th)?\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})?,?\s*(\d{4})\b`)
	// "15 Jul 2025" or "Jul 15 2025"
	abbrMonthRe = regexp.MustCompile(`(?i)\b(?:(\d{1,2})(?:st|nd|rd|th)?\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\.?\s+(\d{1,2})?,?\s*(\d{4})\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November,
	"dec": time.December,
}

// Date scans lines in order against the ordered pattern set (ISO,
// day-first slash/dash, full month name, abbreviated month name) and
// returns the first valid calendar date in an acceptable year.
func Date(lines []string) (time.Time, bool) {
	for _, l := range lines {
		if d, ok := parseDateToken(l); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// parseDateToken applies the pattern set to a single string.
func parseDateToken(s string) (time.Time, bool) {
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		// Day first, Australian convention.
		if d, ok := makeDate(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	for _, re := range []*regexp.Regexp{longMonthRe, abbrMonthRe} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		day := m[1]
		if day == "" {
			day = m[3]
		}
		if day == "" {
			continue
		}
		month, ok := monthsByName[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		if d, ok := makeDateParts(atoi(m[4]), int(month), atoi(day)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func makeDate(year, month, day string) (time.Time, bool) {
	return makeDateParts(atoi(year), atoi(month), atoi(day))
}

func makeDateParts(year, month, day int) (time.Time, bool) {
	if year < minEventYear || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// Reject roll-overs like 31 February.
	if d.Day() != day || d.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return d, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
