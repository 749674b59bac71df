package audit

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
)

// DefaultBlockSelectors returns the element signatures of a vendor block page.
func DefaultBlockSelectors() []string {
	return []string{"form[action*='captcha']"}
}

// DefaultBlockPatterns returns the text signatures of a vendor block page.
func DefaultBlockPatterns() []string {
	return []string{
		"access denied",
		"blocked",
		"sorry, we're unable to complete your request",
		"error ref:",
	}
}

// BlockDetector scans page markup for anti-bot block signatures.
type BlockDetector struct {
	selectors []string
	patterns  []string
}

// NewBlockDetector compiles the selector signatures. Text patterns match
// case-insensitively against the page's visible text.
func NewBlockDetector(selectors, patterns []string) (*BlockDetector, error) {
	d := &BlockDetector{}
	for _, s := range selectors {
		// goquery silently matches nothing on a bad selector.
		if _, err := cascadia.ParseGroup(s); err != nil {
			return nil, eris.Wrapf(err, "audit: parse block selector %q", s)
		}
		d.selectors = append(d.selectors, s)
	}
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			d.patterns = append(d.patterns, p)
		}
	}
	return d, nil
}

// Detect returns the first matching signature.
func (d *BlockDetector) Detect(markup string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		// Unparseable markup still gets the text scan.
		return d.matchText(strings.ToLower(markup))
	}

	for _, s := range d.selectors {
		if doc.Find(s).Length() > 0 {
			return s, true
		}
	}

	doc.Find("script, style, noscript, template").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return d.matchText(strings.ToLower(text))
}

func (d *BlockDetector) matchText(text string) (string, bool) {
	for _, p := range d.patterns {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}
