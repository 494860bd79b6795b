package command

import "github.com/speech2prompt/core/pkg/message"

// phrase associates one spoken phrase with the CommandCode it maps to
// (spec.md Section 4.9). Multiple phrases may map to the same code; the
// dictionary is scanned longest-phrase-first so "copy that" is tried
// before "copy" can shadow it.
type phrase struct {
	text string
	code message.CommandCode
}

// dictionary is the closed phrase -> CommandCode mapping. Phrases are
// lowercase; matching normalizes the utterance the same way before
// comparing.
var dictionary = []phrase{
	{"select all", message.CommandSelectAll},
	{"copy that", message.CommandCopy},
	{"paste that", message.CommandPaste},
	{"cut that", message.CommandCut},
	{"new line", message.CommandEnter},
	{"cancel that", message.CommandCancel},
	{"enter", message.CommandEnter},
	{"copy", message.CommandCopy},
	{"paste", message.CommandPaste},
	{"cut", message.CommandCut},
	{"cancel", message.CommandCancel},
}

func init() {
	sortByDescendingLength(dictionary)
}

func sortByDescendingLength(phrases []phrase) {
	for i := 1; i < len(phrases); i++ {
		for j := i; j > 0 && len(phrases[j-1].text) < len(phrases[j].text); j-- {
			phrases[j-1], phrases[j] = phrases[j], phrases[j-1]
		}
	}
}
