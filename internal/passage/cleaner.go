package passage

import (
	"regexp"
	"strings"
)

// Regex patterns for passage cleanup.
const (
	verseMarkerRegexPattern = `\[\d+\]`
	whitespaceRegexPattern  = `\s+`
)

// Dash characters normalised to an ASCII hyphen.
const (
	emDash     = "—"
	enDash     = "–"
	figureDash = "‒"
)

// Cleaner strips verse-number markers from passage text and normalises
// dashes and whitespace.
type Cleaner struct {
	verseMarkerPattern *regexp.Regexp
	whitespacePattern  *regexp.Regexp
	dashReplacer       *strings.Replacer
}

// NewCleaner creates a Cleaner with precompiled patterns.
func NewCleaner() *Cleaner {
	return &Cleaner{
		verseMarkerPattern: regexp.MustCompile(verseMarkerRegexPattern),
		whitespacePattern:  regexp.MustCompile(whitespaceRegexPattern),
		dashReplacer:       NewDashReplacer(),
	}
}

// NewDashReplacer maps en, em and figure dashes to "-".
func NewDashReplacer() *strings.Replacer {
	return strings.NewReplacer(emDash, "-", enDash, "-", figureDash, "-")
}

// Clean returns text without "[16]"-style markers, with dashes normalised and
// runs of whitespace collapsed to one space.
func (c *Cleaner) Clean(text string) string {
	text = c.verseMarkerPattern.ReplaceAllString(text, " ")
	text = c.dashReplacer.Replace(text)
	text = c.whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// SplitPassage separates a passage into its leading reference line and the
// cleaned remaining text.
func (c *Cleaner) SplitPassage(passage string) (reference, text string) {
	lines := strings.Split(strings.TrimSpace(passage), "\n")
	reference = strings.TrimSpace(lines[0])

	return reference, c.Clean(strings.Join(lines[1:], " "))
}
