// Package passage parses themed reference input and cleans passage text
// returned by the text source.
//
// Input grammar:
//
//	input         := group+
//	group         := themeLine referenceLine+
//	referenceLine := any line containing a decimal digit
//	themeLine     := any other non-blank line
//
// Blank lines are ignored. A theme followed directly by another theme is
// dropped.
package passage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/book-expert/audio-bible/internal/core"
)

// Separator used when handing a group's references to the text source.
const referenceSeparator = ","

// Error message formats.
const (
	errFmtEmptyInput         = "%w: please enter a theme and verse references"
	errFmtReferenceFirst     = "%w: input must start with a theme; a theme is a line without numbers, like 'The Gospel'"
	errFmtThemeWithoutVerses = "%w: please provide verse references for the theme %q; a verse reference should contain numbers (e.g., John 3:16)"
	errFmtNoGroups           = "%w: no valid themes and verses found; input should start with a theme (a line without numbers)"
)

// Group is a theme with the references listed beneath it.
type Group struct {
	Theme      string   `json:"theme" toml:"theme"`
	References []string `json:"references" toml:"references"`
}

// Query joins the group's references for a single text source call.
func (g Group) Query() string {
	return strings.Join(g.References, referenceSeparator)
}

// LineKind classifies an input line.
type LineKind int

// Line kinds.
const (
	LINE_BLANK LineKind = iota
	LINE_THEME
	LINE_REFERENCE
)

// Classify reports the kind of a single input line.
func Classify(line string) LineKind {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return LINE_BLANK
	}

	if strings.IndexFunc(trimmed, unicode.IsDigit) >= 0 {
		return LINE_REFERENCE
	}

	return LINE_THEME
}

// Parse splits themed input into groups. All errors wrap core.ErrInput.
func Parse(input string) ([]Group, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf(errFmtEmptyInput, core.ErrInput)
	}

	var (
		groups  []Group
		current *Group
	)

	for _, line := range strings.Split(input, "\n") {
		switch Classify(line) {
		case LINE_BLANK:
			continue
		case LINE_REFERENCE:
			if current == nil {
				return nil, fmt.Errorf(errFmtReferenceFirst, core.ErrInput)
			}

			current.References = append(current.References, strings.TrimSpace(line))
		case LINE_THEME:
			if current != nil && len(current.References) > 0 {
				groups = append(groups, *current)
			}

			current = &Group{Theme: strings.TrimSpace(line)}
		}
	}

	if current != nil && len(current.References) > 0 {
		groups = append(groups, *current)
	}

	if len(groups) == 0 {
		if current != nil {
			return nil, fmt.Errorf(errFmtThemeWithoutVerses, core.ErrInput, current.Theme)
		}

		return nil, fmt.Errorf(errFmtNoGroups, core.ErrInput)
	}

	return groups, nil
}
