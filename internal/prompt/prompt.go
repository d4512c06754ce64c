// Package prompt expands the user-configurable explanation templates.
package prompt

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	selectionToken = "{{selection}}"
	contextToken   = "{{context}}"

	ellipsis = "..."

	// menu labels show at most this much of the raw selection
	labelSelectionMax = 24

	// DefaultLabelMax caps the rendered context-menu label.
	DefaultLabelMax = 50
)

// Build replaces every {{selection}} and {{context}} token in template with
// the verbatim selection and context text. Substitution is a single
// simultaneous pass: substituted text is inserted byte-for-byte and is never
// re-scanned, so placeholder-shaped substrings inside selection or context
// stay unexpanded.
func Build(template, selection, context string) string {
	var b strings.Builder
	b.Grow(len(template) + len(selection) + len(context))

	rest := template
	for {
		selIdx := strings.Index(rest, selectionToken)
		ctxIdx := strings.Index(rest, contextToken)
		if selIdx < 0 && ctxIdx < 0 {
			b.WriteString(rest)
			return b.String()
		}

		if selIdx >= 0 && (ctxIdx < 0 || selIdx <= ctxIdx) {
			b.WriteString(rest[:selIdx])
			b.WriteString(selection)
			rest = rest[selIdx+len(selectionToken):]
		} else {
			b.WriteString(rest[:ctxIdx])
			b.WriteString(context)
			rest = rest[ctxIdx+len(contextToken):]
		}
	}
}

// BuildMenuLabel renders the condensed context-menu label. The selection is
// truncated before substitution and {{context}} always collapses to an
// ellipsis; after substitution the whole label is hard-capped at maxLen.
// Truncating in that order keeps the length contract independent of how much
// a placeholder expands.
func BuildMenuLabel(template, selection string, maxLen int) string {
	condensed := selection
	if runewidth.StringWidth(selection) > labelSelectionMax {
		condensed = runewidth.Truncate(selection, labelSelectionMax, "") + ellipsis
	}
	label := Build(template, condensed, ellipsis)
	label = runewidth.Truncate(label, maxLen, ellipsis)

	// Width truncation alone cannot bound the character count: zero-width
	// runes such as combining marks add length without adding width. The
	// caller's contract is a character cap, so enforce it directly.
	if r := []rune(label); len(r) > maxLen {
		label = string(r[:maxLen-len(ellipsis)]) + ellipsis
	}
	return label
}
