package rules

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kswitchd/internal/store"
)

func TestRecordUndoSuppressesAfterThree(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := Open(ctx, backend)

	for i := 0; i < 2; i++ {
		sup, err := s.RecordUndo(ctx, "Ghbdtn ")
		require.NoError(t, err)
		assert.False(t, sup)
	}
	assert.False(t, s.IsSuppressed("ghbdtn"))
	assert.Equal(t, 2, s.UndoCount("GHBDTN"))

	sup, err := s.RecordUndo(ctx, "ghbdtn")
	require.NoError(t, err)
	assert.True(t, sup)
	assert.True(t, s.IsSuppressed(" Ghbdtn"))

	reloaded := Open(ctx, backend)
	assert.True(t, reloaded.IsSuppressed("ghbdtn"))
	assert.Equal(t, 3, reloaded.UndoCount("ghbdtn"))
	assert.Equal(t, []string{"ghbdtn"}, reloaded.Suppressed())
}

func TestTwoUndosNotSuppressedAfterReload(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := Open(ctx, backend)
	for i := 0; i < 2; i++ {
		_, err := s.RecordUndo(ctx, "rfr")
		require.NoError(t, err)
	}

	reloaded := Open(ctx, backend)
	assert.False(t, reloaded.IsSuppressed("rfr"))
	assert.Equal(t, 2, reloaded.UndoCount("rfr"))
}

func TestRecordUndoIgnoresBlank(t *testing.T) {
	s := Open(context.Background(), NewMemoryBackend())
	sup, err := s.RecordUndo(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, sup)
	assert.Empty(t, s.Snapshot().UndoCounts)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := Open(ctx, backend)
	for i := 0; i < SuppressAfter; i++ {
		_, _ = s.RecordUndo(ctx, "word")
	}
	require.True(t, s.IsSuppressed("word"))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.IsSuppressed("word"))
	assert.Zero(t, s.UndoCount("word"))

	reloaded := Open(ctx, backend)
	assert.Empty(t, reloaded.Suppressed())
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryBackend())
	_, _ = s.RecordUndo(ctx, "a")

	err := s.Merge(ctx, Snapshot{
		UndoCounts: map[string]int{"A": 1, "b": 3, "c": 1},
		Suppressed: []string{"D"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.UndoCount("a"))
	assert.True(t, s.IsSuppressed("b"))
	assert.False(t, s.IsSuppressed("c"))
	assert.Equal(t, []string{"b", "d"}, s.Suppressed())
}

type failingBackend struct{}

var errBackend = errors.New("backend down")

func (failingBackend) Load(context.Context) (Snapshot, error) { return Snapshot{}, errBackend }
func (failingBackend) Save(context.Context, Snapshot) error    { return errBackend }
func (failingBackend) Close() error                            { return nil }

func TestBackendFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, failingBackend{})
	for i := 0; i < 2; i++ {
		_, err := s.RecordUndo(ctx, "x")
		assert.ErrorIs(t, err, errBackend)
	}
	sup, err := s.RecordUndo(ctx, "x")
	assert.Error(t, err)
	assert.True(t, sup)
	assert.True(t, s.IsSuppressed("x"))
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")

	db, err := store.Open(path)
	require.NoError(t, err)
	s := Open(ctx, NewSQLiteBackend(db))
	for i := 0; i < SuppressAfter; i++ {
		_, err := s.RecordUndo(ctx, "ghbdtn")
		require.NoError(t, err)
	}
	_, err = s.RecordUndo(ctx, "rfr")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err = store.Open(path)
	require.NoError(t, err)
	reloaded := Open(ctx, NewSQLiteBackend(db))
	defer reloaded.Close()

	assert.True(t, reloaded.IsSuppressed("ghbdtn"))
	assert.Equal(t, 1, reloaded.UndoCount("rfr"))
	assert.False(t, reloaded.IsSuppressed("rfr"))
}

func TestBadgerBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "rules")

	b, err := OpenBadger(dir)
	require.NoError(t, err)
	s := Open(ctx, b)
	for i := 0; i < SuppressAfter; i++ {
		_, err := s.RecordUndo(ctx, "руддщ")
		require.NoError(t, err)
	}
	_, err = s.RecordUndo(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	b, err = OpenBadger(dir)
	require.NoError(t, err)
	reloaded := Open(ctx, b)
	defer reloaded.Close()

	assert.True(t, reloaded.IsSuppressed("руддщ"))
	assert.Equal(t, 1, reloaded.UndoCount("other"))

	require.NoError(t, reloaded.Clear(ctx))
	snap, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.UndoCounts)
	assert.Empty(t, snap.Suppressed)
}

func TestBadgerInMemory(t *testing.T) {
	b, err := OpenBadger("")
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Save(ctx, Snapshot{UndoCounts: map[string]int{"a": 2}, Suppressed: []string{"z"}}))
	snap, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2}, snap.UndoCounts)
	assert.Equal(t, []string{"z"}, snap.Suppressed)
}

func TestReadLegacy(t *testing.T) {
	snap, err := ReadLegacy(strings.NewReader(`{"undo_counts": {"ghbdtn": 3, "rfr": 1}, "suppressed": ["ghbdtn"]}`))
	require.NoError(t, err)
	assert.Equal(t, 3, snap.UndoCounts["ghbdtn"])
	assert.Equal(t, []string{"ghbdtn"}, snap.Suppressed)

	snap, err = ReadLegacy(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, snap.UndoCounts)
}

func TestReadLegacyRejectsBadShape(t *testing.T) {
	cases := []string{
		`{"undo_counts": {"a": "three"}}`,
		`{"undo_counts": {"a": -1}}`,
		`{"suppressed": "a"}`,
		`[1, 2]`,
		`not json`,
	}
	for _, c := range cases {
		_, err := ReadLegacy(strings.NewReader(c))
		assert.ErrorIs(t, err, ErrInvalidLegacy, c)
	}
}
