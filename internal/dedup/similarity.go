package dedup

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plent/internal/artifact"
)

// Normalize prepares a name for comparison: colour markup removed, NFC
// normalized, case folded and whitespace collapsed.
func Normalize(s string) string {
	s = artifact.StripColors(s)
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

type trigram [3]rune

// trigrams returns the len(s)+1 space-padded trigrams of s, in order.
func trigrams(s string) []trigram {
	r := []rune(s)
	out := make([]trigram, 0, len(r)+1)
	at := func(i int) rune {
		if i < 0 || i >= len(r) {
			return ' '
		}
		return r[i]
	}
	for i := 0; i <= len(r); i++ {
		out = append(out, trigram{at(i - 2), at(i - 1), at(i)})
	}
	return out
}

// Similarity scores how much of stored is covered by query: the share of
// stored's trigrams that also occur in query, in [0, 1].
func Similarity(stored, query string) float64 {
	ts := trigrams(stored)
	tq := make(map[trigram]bool)
	for _, t := range trigrams(query) {
		tq[t] = true
	}
	matches := 0
	for _, t := range ts {
		if tq[t] {
			matches++
		}
	}
	score := float64(matches) / float64(len(ts))
	if score > 1 {
		score = 1
	}
	return score
}
