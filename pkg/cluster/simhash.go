package cluster

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// Fingerprint computes a 64-bit SimHash over the whitespace tokens of the
// given text. It is a locality-sensitive digest: near-duplicate texts
// produce fingerprints with a low Hamming distance, which makes the
// 1-hamming/64 similarity component meaningful. Deterministic and
// case-insensitive; empty input yields 0.
func Fingerprint(text string) uint64 {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return 0
	}

	var counts [64]int
	for _, token := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}

	var fp uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return fp
}

// HammingSimilarity converts the Hamming distance between two fingerprints
// into a [0,1] similarity
func HammingSimilarity(a, b uint64) float64 {
	return 1.0 - float64(bits.OnesCount64(a^b))/64.0
}

// Tokens normalizes text into comparison tokens: lowercased, punctuation
// stripped with CJK ideographs retained, whitespace separated. CJK runs
// are additionally split into character bigrams so unspaced scripts still
// produce a usable token set.
func Tokens(text string) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		default:
			sb.WriteRune(' ')
		}
	}

	var tokens []string
	for _, field := range strings.Fields(sb.String()) {
		tokens = append(tokens, splitCJK(field)...)
	}
	return tokens
}

// splitCJK breaks a mixed token into latin runs and CJK bigrams
func splitCJK(token string) []string {
	runes := []rune(token)
	var out []string
	var latin []rune
	var cjk []rune

	flushLatin := func() {
		if len(latin) > 0 {
			out = append(out, string(latin))
			latin = latin[:0]
		}
	}
	flushCJK := func() {
		if len(cjk) == 1 {
			out = append(out, string(cjk))
		}
		for i := 0; i+1 < len(cjk); i++ {
			out = append(out, string(cjk[i:i+2]))
		}
		cjk = cjk[:0]
	}

	for _, r := range runes {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			flushLatin()
			cjk = append(cjk, r)
			continue
		}
		flushCJK()
		latin = append(latin, r)
	}
	flushLatin()
	flushCJK()
	return out
}
