// Package metrickit implements the pairwise string-similarity primitives
// used by the field comparators: edit distances, phonetic equality, and
// prefix-aware slicing/trimming utilities.
package metrickit

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Metrics is the result of comparing two strings across every supported
// measure. All symmetric measures are symmetric in (a, b).
type Metrics struct {
	A                        string  `json:"a"`
	B                        string  `json:"b"`
	Equal                    bool    `json:"equal"`
	DamerauLevenshteinDist   int     `json:"damerau_levenshtein_distance"`
	LevenshteinDist          int     `json:"levenshtein_distance"`
	HammingDist              int     `json:"hamming_distance"`
	JaroWinkler              float64 `json:"jaro_winkler"`
	Ratio                    float64 `json:"ratio"`
	Metaphone                bool    `json:"metaphone"`
}

// PairwiseStringMetrics computes every similarity measure for a pair of
// strings in one pass.
func PairwiseStringMetrics(a, b string) Metrics {
	lev := matchr.Levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	ratio := 1.0
	if maxLen > 0 {
		ratio = 1.0 - float64(lev)/float64(maxLen)
	}

	return Metrics{
		A:                      a,
		B:                      b,
		Equal:                  a == b,
		DamerauLevenshteinDist: matchr.DamerauLevenshtein(a, b),
		LevenshteinDist:        lev,
		HammingDist:            hammingDistance(a, b),
		JaroWinkler:            matchr.JaroWinkler(a, b, false),
		Ratio:                  ratio,
		Metaphone:              metaphoneEqual(a, b),
	}
}

// hammingDistance counts the number of differing positions up to the length
// of the shorter string, plus the absolute length difference. This is the
// consistent extension of Hamming distance to unequal-length inputs chosen
// for this system.
func hammingDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	dist := 0
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			dist++
		}
	}
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	return dist + diff
}

func metaphoneEqual(a, b string) bool {
	ma, _ := matchr.DoubleMetaphone(a)
	mb, _ := matchr.DoubleMetaphone(b)
	return ma == mb
}

// ReplaceBoth applies strings.ReplaceAll(old, new) to both inputs.
func ReplaceBoth(a, b, old, new string) (string, string) {
	return strings.ReplaceAll(a, old, new), strings.ReplaceAll(b, old, new)
}

// SliceBoth truncates both inputs to at most n runes.
func SliceBoth(a, b string, n int) (string, string) {
	return sliceTo(a, n), sliceTo(b, n)
}

func sliceTo(s string, n int) string {
	r := []rune(s)
	if n < 0 {
		n = 0
	}
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n])
}

// TrimBoth trims leading/trailing whitespace from both inputs.
func TrimBoth(a, b string) (string, string) {
	return strings.TrimSpace(a), strings.TrimSpace(b)
}

var nonAlpha = regexp.MustCompile(`[^A-Za-z]`)

// StripNonAlpha removes every character that is not an ASCII letter.
func StripNonAlpha(s string) string {
	return nonAlpha.ReplaceAllString(s, "")
}
