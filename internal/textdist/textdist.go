// Package textdist measures edit distance between words and ranks spelling
// candidates.
package textdist

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Distance returns the optimal string alignment variant of the
// Damerau-Levenshtein distance between a and b, counted in runes:
// insertions, deletions, substitutions and transpositions of adjacent
// characters each cost one.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(
				d[i-1][j]+1,
				d[i][j-1]+1,
				d[i-1][j-1]+cost,
			)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[la][lb]
}

// Within reports whether the Distance between a and b is at most limit. It
// gives up as soon as a whole row of the table exceeds limit, so rejecting a
// distant word costs a few rows rather than the full table.
func Within(a, b []rune, limit int) bool {
	la, lb := len(a), len(b)
	if la-lb > limit || lb-la > limit {
		return false
	}
	if la == 0 || lb == 0 {
		return true
	}

	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			v := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				v = min(v, prev2[j-2]+1)
			}
			cur[j] = v
			rowMin = min(rowMin, v)
		}
		if rowMin > limit {
			return false
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[lb] <= limit
}

// Match is a scored spelling candidate.
type Match struct {
	Word     string
	Distance int
	LenDiff  int
	// Similarity is the Jaro-Winkler score, used only to break ties.
	Similarity float64
}

// Rank scores candidates against word and orders them best first: smallest
// distance, then smallest length difference, then highest Jaro-Winkler
// similarity, then lexical order. Comparison is case-insensitive.
func Rank(word string, candidates []string) []Match {
	w := strings.ToLower(word)
	wl := len([]rune(w))
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		lc := strings.ToLower(c)
		diff := len([]rune(lc)) - wl
		if diff < 0 {
			diff = -diff
		}
		out = append(out, Match{
			Word:       c,
			Distance:   Distance(w, lc),
			LenDiff:    diff,
			Similarity: matchr.JaroWinkler(w, lc, false),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.LenDiff != b.LenDiff {
			return a.LenDiff < b.LenDiff
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Word < b.Word
	})
	return out
}

// Best returns the top ranked candidate within maxDistance.
func Best(word string, candidates []string, maxDistance int) (Match, bool) {
	ranked := Rank(word, candidates)
	if len(ranked) == 0 || ranked[0].Distance > maxDistance {
		return Match{}, false
	}
	return ranked[0], true
}
