// Package preprocess normalises raw web snippets before they are scored and
// placed into evidence sets.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// CleanSnippet strips control characters, collapses whitespace, and trims the
// boilerplate search engines wrap around result snippets.
func CleanSnippet(text string) string {
	if text == "" {
		return ""
	}

	// remove control chars except newline
	b := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	b = reSpaces.ReplaceAllString(b, " ")
	b = reNewlines.ReplaceAllString(b, "\n\n")

	return strings.TrimSpace(b)
}

// HTMLToText extracts readable content from an HTML fragment, keeping heading
// and list structure. Snippets that are not HTML pass through CleanSnippet.
func HTMLToText(html string) (string, error) {
	if !strings.Contains(html, "<") {
		return CleanSnippet(html), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,p,li").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+text)
		case "h2":
			out = append(out, "## "+text)
		case "h3":
			out = append(out, "### "+text)
		case "li":
			out = append(out, "- "+text)
		default:
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		// fragment without block elements, fall back to full text
		return CleanSnippet(doc.Text()), nil
	}
	return CleanSnippet(strings.Join(out, "\n\n")), nil
}
