package parse

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const maxDetailChars = 500

var (
	detailPolicy = bluemonday.UGCPolicy()

	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	hiddenStylePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)display\s*:\s*none`),
		regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	}
)

// ScheduleDetails flattens a candidate's inner markup into plain schedule
// text: hidden nodes dropped, markup sanitised, converted to markdown,
// whitespace collapsed, capped at 500 chars. Returns "" when the markup
// yields nothing useful.
func ScheduleDetails(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}

	visible := stripHiddenNodes(markup)
	clean := detailPolicy.Sanitize(visible)

	md, err := mdConverter.ConvertString(clean)
	if err != nil {
		md = clean
	}

	text := collapseSpace(md)
	return truncate(text, maxDetailChars)
}

// stripHiddenNodes removes elements styled invisible (display:none and
// friends) before sanitising, so hidden SEO filler doesn't end up in the
// schedule text. On parse failure the markup is returned unchanged.
func stripHiddenNodes(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		var next *html.Node
		for c := n.FirstChild; c != nil; c = next {
			next = c.NextSibling
			if isHiddenNode(c) {
				n.RemoveChild(c)
				continue
			}
			walk(c)
		}
	}
	walk(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return markup
	}
	return buf.String()
}

func isHiddenNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		for _, pat := range hiddenStylePatterns {
			if pat.MatchString(a.Val) {
				return true
			}
		}
	}
	return false
}
