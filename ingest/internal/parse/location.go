package parse

import (
	"regexp"
	"strings"
)

// States in declaration order; the first one found in the combined text
// wins, so NSW beats a later QLD mention.
var States = []string{"NSW", "QLD", "VIC", "SA", "WA", "NT", "ACT", "TAS"}

var stateRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(States))
	for i, s := range States {
		res[i] = regexp.MustCompile(`\b` + s + `\b`)
	}
	return res
}()

var anyStateRe = regexp.MustCompile(`\b(NSW|QLD|VIC|SA|WA|NT|ACT|TAS)\b`)

// Location indicator prefixes, checked case-insensitively at the start of
// each line. "at " needs the trailing space so "Saturday" doesn't match.
var locationPrefixes = []string{"location:", "venue:", "at ", "held at", "address:"}

// Location scans for an indicator prefix and returns the remainder of the
// matching line; failing that, the first line carrying a state token;
// failing that, "".
func Location(lines []string) string {
	for _, l := range lines {
		lower := strings.ToLower(l)
		for _, p := range locationPrefixes {
			if strings.HasPrefix(lower, p) {
				rest := strings.TrimSpace(l[len(p):])
				if rest != "" {
					return rest
				}
			}
		}
	}
	for _, l := range lines {
		if anyStateRe.MatchString(l) {
			return l
		}
	}
	return ""
}

// State returns the first state token (in declaration order) present in
// text, or "".
func State(text string) string {
	for i, re := range stateRes {
		if re.MatchString(text) {
			return States[i]
		}
	}
	return ""
}

// ValidState reports whether s is one of the eight state tokens.
func ValidState(s string) bool {
	for _, st := range States {
		if st == s {
			return true
		}
	}
	return false
}
