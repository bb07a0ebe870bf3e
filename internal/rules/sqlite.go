package rules

import (
	"context"

	"kswitchd/internal/store"
)

// SQLiteBackend saves rules in the SQLite store.
type SQLiteBackend struct {
	db *store.Store
}

// NewSQLiteBackend wraps an open store. Closing the backend closes it.
func NewSQLiteBackend(db *store.Store) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Load(ctx context.Context) (Snapshot, error) {
	counts, err := b.db.UndoCounts(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	sup, err := b.db.SuppressedPatterns(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{UndoCounts: counts, Suppressed: sup}, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, s Snapshot) error {
	return b.db.ReplaceRules(ctx, s.UndoCounts, s.Suppressed)
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }
