package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed rule and journal store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations. The
// file is restricted to its owner since the journal holds typed text.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UndoCounts returns every pattern's undo counter.
func (s *Store) UndoCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern, count FROM undo_counts`)
	if err != nil {
		return nil, fmt.Errorf("query undo counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("scan undo count: %w", err)
		}
		counts[p] = n
	}
	return counts, rows.Err()
}

// SuppressedPatterns returns the permanently suppressed patterns, sorted.
func (s *Store) SuppressedPatterns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern FROM suppressed ORDER BY pattern`)
	if err != nil {
		return nil, fmt.Errorf("query suppressed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan suppressed: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceRules overwrites all counters and suppressed patterns in one
// transaction.
func (s *Store) ReplaceRules(ctx context.Context, counts map[string]int, suppressed []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM undo_counts`); err != nil {
		return fmt.Errorf("clear undo counts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM suppressed`); err != nil {
		return fmt.Errorf("clear suppressed: %w", err)
	}

	now := time.Now().UnixNano()
	patterns := make([]string, 0, len(counts))
	for p := range counts {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO undo_counts (pattern, count, updated_ns) VALUES (?, ?, ?)`,
			p, counts[p], now,
		); err != nil {
			return fmt.Errorf("insert undo count: %w", err)
		}
	}
	for _, p := range suppressed {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO suppressed (pattern, created_ns) VALUES (?, ?)`,
			p, now,
		); err != nil {
			return fmt.Errorf("insert suppressed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rules: %w", err)
	}
	return nil
}

// Rules lists every known pattern with its counter and suppression flag.
func (s *Store) Rules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.pattern, COALESCE(u.count, 0), s.pattern IS NOT NULL, COALESCE(u.updated_ns, s.created_ns, 0)
		FROM (SELECT pattern FROM undo_counts UNION SELECT pattern FROM suppressed) p
		LEFT JOIN undo_counts u ON u.pattern = p.pattern
		LEFT JOIN suppressed s ON s.pattern = p.pattern
		ORDER BY p.pattern`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.Pattern, &r.UndoCount, &r.Suppressed, &r.UpdatedNs); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendJournal records an applied correction.
func (s *Store) AppendJournal(ctx context.Context, e *JournalEntry) (int64, error) {
	if e.TimestampNs == 0 {
		e.TimestampNs = time.Now().UnixNano()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (entry_id, kind, original, corrected, strategy, confidence, timestamp_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, string(e.Kind), e.Original, e.Corrected, e.Strategy, e.Confidence, e.TimestampNs,
	)
	if err != nil {
		return 0, fmt.Errorf("insert correction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	e.ID = id
	return id, nil
}

// RecentJournal returns up to limit entries, newest first.
func (s *Store) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, kind, original, corrected, COALESCE(strategy, ''), confidence, timestamp_ns
		FROM corrections
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.EntryID, &kind, &e.Original, &e.Corrected, &e.Strategy, &e.Confidence, &e.TimestampNs); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		e.Kind = JournalKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// JournalCounts returns the number of journal entries per kind.
func (s *Store) JournalCounts(ctx context.Context) (map[JournalKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM corrections GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query correction counts: %w", err)
	}
	defer rows.Close()

	out := make(map[JournalKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan correction count: %w", err)
		}
		out[JournalKind(kind)] = n
	}
	return out, rows.Err()
}

// PruneJournal deletes entries older than cutoff and returns how many went.
func (s *Store) PruneJournal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM corrections WHERE timestamp_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune corrections: %w", err)
	}
	return res.RowsAffected()
}
