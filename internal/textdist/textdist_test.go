package textdist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"ab", "ba", 1},
		{"teh", "the", 1},
		{"ca", "abc", 3},
		{"ывгключил", "выключил", 2},
		{"привет", "привет", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "Distance(%q, %q)", tt.a, tt.b)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	words := []string{"", "a", "ab", "hello", "helol", "привет", "првиет", "выклюсрил", "выключил"}
	for _, a := range words {
		assert.Equal(t, 0, Distance(a, a))
		for _, b := range words {
			assert.Equal(t, Distance(a, b), Distance(b, a), "asymmetric for %q %q", a, b)
		}
	}
}

func TestRankOrdering(t *testing.T) {
	ranked := Rank("helo", []string{"help", "hello", "halo", "hero"})
	assert.Len(t, ranked, 4)
	// All are distance 1; hello differs in length so it ranks last.
	assert.Equal(t, "hello", ranked[3].Word)
	for _, m := range ranked[:3] {
		assert.Equal(t, 1, m.Distance)
		assert.Equal(t, 0, m.LenDiff)
	}
}

func TestBest(t *testing.T) {
	m, ok := Best("выклюсрил", []string{"выключил", "включил"}, 3)
	assert.True(t, ok)
	assert.Equal(t, "выключил", m.Word)

	_, ok = Best("zzzzzz", []string{"hello"}, 3)
	assert.False(t, ok)

	_, ok = Best("x", nil, 3)
	assert.False(t, ok)
}

func TestWithinAgreesWithDistance(t *testing.T) {
	words := []string{"", "a", "ab", "ba", "abc", "ca", "teh", "the", "hello", "helol", "wrold", "world",
		"kitten", "sitting", "привет", "првиет", "ывгключил", "выключил", "включил"}
	for _, a := range words {
		for _, b := range words {
			d := Distance(a, b)
			for limit := 0; limit <= 3; limit++ {
				assert.Equal(t, d <= limit, Within([]rune(a), []rune(b), limit),
					"Within(%q, %q, %d) with distance %d", a, b, limit, d)
			}
		}
	}
}
