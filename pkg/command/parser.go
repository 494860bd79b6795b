// Package command implements spec.md Section 4.9's command parser:
// normalizing a recognized utterance and matching it against the closed
// phrase -> CommandCode dictionary.
package command

import (
	"strings"
	"unicode"

	"github.com/speech2prompt/core/pkg/message"
)

// Result is process(text)'s {text_before?, command?, text_after?} triple.
// TextBefore/TextAfter are empty when absent; HasCommand reports whether
// Command is meaningful.
type Result struct {
	TextBefore string
	Command    message.CommandCode
	HasCommand bool
	TextAfter  string
}

// Process normalizes text (lowercase, trimmed) and matches it against the
// dictionary, longest phrase first, requiring word boundaries on both
// sides of the match (spec.md Section 4.9 rules 1-3). If no phrase
// matches, the whole normalized utterance is returned as TextBefore
// (rule 4).
func Process(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, p := range dictionary {
		start, end, ok := findWithBoundaries(normalized, p.text)
		if !ok {
			continue
		}
		return Result{
			TextBefore: strings.TrimSpace(normalized[:start]),
			Command:    p.code,
			HasCommand: true,
			TextAfter:  strings.TrimSpace(normalized[end:]),
		}
	}

	return Result{TextBefore: normalized}
}

// findWithBoundaries returns the first occurrence of sub in s whose
// surrounding characters are not letters (or the string's start/end),
// so "copy" does not match inside "copying".
func findWithBoundaries(s, sub string) (start, end int, ok bool) {
	if sub == "" {
		return 0, 0, false
	}
	searchFrom := 0
	for {
		idx := strings.Index(s[searchFrom:], sub)
		if idx < 0 {
			return 0, 0, false
		}
		idx += searchFrom
		matchEnd := idx + len(sub)

		leftOK := idx == 0 || !isWordChar(rune(s[idx-1]))
		rightOK := matchEnd == len(s) || !isWordChar(rune(s[matchEnd]))
		if leftOK && rightOK {
			return idx, matchEnd, true
		}
		searchFrom = idx + 1
		if searchFrom >= len(s) {
			return 0, 0, false
		}
	}
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r)
}
