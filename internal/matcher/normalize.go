package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var (
	tagPattern         = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s+[^>]*)?>`)
	displayMathPattern = regexp.MustCompile(`\$\$[^$]*\$\$`)
	inlineMathPattern  = regexp.MustCompile(`\$[^$]*\$`)
	bracketMathPattern = regexp.MustCompile(`\\[(\[][^\\]*\\[)\]]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// Clean strips HTML-like tags and LaTeX math, then collapses whitespace.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = tagPattern.ReplaceAllString(text, " ")
	text = displayMathPattern.ReplaceAllString(text, " ")
	text = inlineMathPattern.ReplaceAllString(text, " ")
	text = bracketMathPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// Normalize cleans text and keeps only CJK ideographs, letters, digits and
// underscores, case folded. Full-width forms are folded to their narrow equivalents first.
func Normalize(text string) string {
	cleaned := width.Fold.String(Clean(text))
	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if isCJK(r) || unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return cases.Fold().String(b.String())
}

// Matches reports whether the normalized forms of a and b contain one another.
// Empty inputs never match.
func Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fff
}

// TableText flattens an HTML table into its cell text so entities are decoded
// before comparison. Non-HTML content is returned unchanged.
func TableText(raw string) string {
	if !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	cells := doc.Find("th, td")
	if cells.Length() == 0 {
		return doc.Text()
	}
	parts := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(cell.Text()))
	})
	return strings.Join(parts, " ")
}
