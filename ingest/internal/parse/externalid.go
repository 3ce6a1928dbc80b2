package parse

import "regexp"

// URL patterns the registration site uses for event links, most specific
// first. Trailing digits are the last resort because they also match
// pagination links.
var externalIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`event[/=](\d+)`),
	regexp.MustCompile(`id[/=](\d+)`),
	regexp.MustCompile(`register[/=](\d+)`),
	regexp.MustCompile(`/(\d+)/?$`),
}

// ExternalID extracts the source site's event identifier from a URL
// fragment, or "" when none of the patterns match.
func ExternalID(href string) string {
	if href == "" {
		return ""
	}
	for _, pat := range externalIDPatterns {
		if m := pat.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}
