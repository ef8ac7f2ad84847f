package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// phrase is a wake phrase split into lowercase tokens.
type phrase struct {
	text   string
	tokens []string
	joined string
	codes  map[string]struct{}
}

func newPhrase(text string) phrase {
	tokens := tokenize(text)
	return phrase{
		text:   text,
		tokens: tokens,
		joined: strings.Join(tokens, ""),
		codes:  codesForTokens(tokens),
	}
}

// tokenize lowercases s and splits it into words of letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// score rates how well the window of transcript tokens sounds like p, in
// [0,1]. Windows that share no phonetic code with the phrase are penalised by
// fuzzyPenalty.
func (p phrase) score(window []string) float64 {
	joined := strings.Join(window, "")
	s := matchr.JaroWinkler(strings.Join(window, " "), strings.Join(p.tokens, " "), false)
	if js := matchr.JaroWinkler(joined, p.joined, false); js > s {
		s = js
	}
	// "pico voice" and "picovoice" must compare equal phonetically.
	wc := codesForTokens(window)
	for code := range codesForTokens([]string{joined}) {
		wc[code] = struct{}{}
	}
	if !codesOverlap(wc, p.codes) && !codesOverlap(wc, codesForTokens([]string{p.joined})) {
		s -= fuzzyPenalty
	}
	return s
}

// bestScore slides windows of the phrase length and one token either side
// over tokens and returns the best score.
func (p phrase) bestScore(tokens []string) float64 {
	best := 0.0
	n := len(p.tokens)
	for size := max(n-1, 1); size <= n+1; size++ {
		for i := 0; i+size <= len(tokens); i++ {
			if s := p.score(tokens[i : i+size]); s > best {
				best = s
			}
		}
	}
	return best
}

// thresholdFor maps a sensitivity in [0,1] to a minimum score. Higher
// sensitivity accepts looser matches.
func thresholdFor(sensitivity float64) float64 {
	sensitivity = min(max(sensitivity, 0), 1)
	return maxThreshold - sensitivity*(maxThreshold-minThreshold)
}
