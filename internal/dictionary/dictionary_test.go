package dictionary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	en, err := Builtin(English)
	require.NoError(t, err)
	assert.True(t, en.Contains("hello"))
	assert.True(t, en.Contains("Hello"))
	assert.False(t, en.Contains("ghbdtn"))

	ru, err := Builtin(Russian)
	require.NoError(t, err)
	assert.True(t, ru.Contains("привет"))
	assert.True(t, ru.Contains("выключил"))
	assert.False(t, ru.Contains("ывгключил"))

	assert.Greater(t, en.Len(), 50000)
	assert.Greater(t, ru.Len(), 50000)
	for _, w := range []string{"typing", "weather", "Colour", "working"} {
		assert.True(t, en.Contains(w), w)
	}
	for _, w := range []string{"работаю", "погода", "Пишешь", "хорошего", "ещё", "еще"} {
		assert.True(t, ru.Contains(w), w)
	}

	_, err = Builtin(Belarusian)
	assert.ErrorIs(t, err, ErrNoBuiltin)
}

func TestLoadSkipsCommentsAndBlanks(t *testing.T) {
	wl, err := Load(English, strings.NewReader("# header\n\nFoo\n bar \nfoo\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, wl.Len())
	assert.True(t, wl.Contains("foo"))
	assert.True(t, wl.Contains("BAR"))
}

func TestCandidates(t *testing.T) {
	wl := NewWordList(Russian, []string{"выключил", "включил", "привет", "как"})

	got := wl.Candidates("ывгключил")
	assert.Equal(t, []string{"включил", "выключил"}, got)

	assert.Equal(t, []string{"привет"}, wl.Candidates("првиет"))
	assert.Empty(t, wl.Candidates("привет"), "exact word is not its own candidate")

	wl.SetMaxDistance(1)
	assert.Empty(t, wl.Candidates("ывгключил"))
}

func TestSet(t *testing.T) {
	s, err := NewDefaultSet()
	require.NoError(t, err)
	assert.Equal(t, []Language{English, Russian}, s.Languages())

	d, ok := s.Get(Russian)
	require.True(t, ok)
	assert.True(t, d.Contains("как"))

	_, ok = s.Get(Belarusian)
	assert.False(t, ok)
}

func TestWritten(t *testing.T) {
	assert.True(t, Written(English, "hello"))
	assert.True(t, Written(English, "don't"))
	assert.False(t, Written(English, "привет"))
	assert.True(t, Written(Russian, "привет"))
	assert.False(t, Written(Russian, "выклюchил"))
	assert.False(t, Written(Russian, "123"))
}

func TestLoadExtra(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.txt"), []byte("kswitchd\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "be.txt"), []byte("дзякуй\n"), 0o600))

	s, err := NewDefaultSet()
	require.NoError(t, err)
	require.NoError(t, LoadExtra(s, dir, []Language{English, Russian, Belarusian}))

	en, _ := s.Get(English)
	assert.True(t, en.Contains("kswitchd"))
	assert.True(t, en.Contains("hello"), "built-in words survive the merge")

	be, ok := s.Get(Belarusian)
	require.True(t, ok)
	assert.True(t, be.Contains("дзякуй"))

	assert.NoError(t, LoadExtra(s, "", []Language{English}))
}
