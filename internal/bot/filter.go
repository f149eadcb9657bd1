package bot

import (
	"math/rand"
	"strings"
)

// wordFilter screens outbound reply text against a configured term
// blacklist. A hit swaps the reply for a random substitute line, or
// suppresses it entirely when no substitutes are configured.
type wordFilter struct {
	terms       []string
	substitutes []string
	pick        func(n int) int // injectable for tests
}

func newWordFilter(terms, substitutes []string) *wordFilter {
	return &wordFilter{
		terms:       terms,
		substitutes: substitutes,
		pick:        rand.Intn,
	}
}

// Apply returns the text to send and whether sending should proceed.
func (f *wordFilter) Apply(text string) (string, bool) {
	if !f.hit(text) {
		return text, true
	}
	if len(f.substitutes) == 0 {
		return "", false
	}
	return f.substitutes[f.pick(len(f.substitutes))], true
}

func (f *wordFilter) hit(text string) bool {
	for _, term := range f.terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}
