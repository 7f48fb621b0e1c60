// Package moderation masks censored words in message bodies before
// they are saved or routed.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator holds an Aho-Corasick automaton built once from the word
// list. Censor is safe for concurrent use.
type Moderator struct {
	matcher     *goahocorasick.Machine
	maskingChar rune
}

func NewModerator(words []string, maskingChar rune) (*Moderator, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = foldRunes([]rune(word))
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, maskingChar: maskingChar}, nil
}

// Censor masks every censored word in the input, preserving spacing
// and punctuation. Matching is case-insensitive and ignores separator
// characters, so "b a.d" still matches "bad".
func (m *Moderator) Censor(original string) string {
	orig := []rune(original)
	folded := make([]rune, 0, len(orig))
	// position of each folded rune in the original string
	backref := make([]int, 0, len(orig))
	for i, r := range orig {
		if isSeparator(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		backref = append(backref, i)
	}
	if len(folded) == 0 {
		return original
	}

	hits := m.matcher.MultiPatternSearch(folded, false)
	if len(hits) == 0 {
		return original
	}
	for _, hit := range hits {
		start := hit.Pos
		end := start + len(hit.Word)
		if start < 0 || end > len(backref) {
			continue
		}
		for i := backref[start]; i <= backref[end-1]; i++ {
			orig[i] = m.maskingChar
		}
	}
	return string(orig)
}

func foldRunes(in []rune) []rune {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if isSeparator(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}
