package rules

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

const (
	countPrefix      = "undo/"
	suppressedPrefix = "suppressed/"
)

// BadgerBackend saves rules in an embedded Badger key-value store. Counters
// live under "undo/<pattern>" and suppressed patterns under
// "suppressed/<pattern>".
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens a Badger directory at path, or an in-memory store when
// path is empty.
func OpenBadger(path string) (*BadgerBackend, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Load(_ context.Context) (Snapshot, error) {
	snap := Snapshot{UndoCounts: make(map[string]int)}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(countPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pattern := string(item.Key()[len(prefix):])
			err := item.Value(func(v []byte) error {
				n, err := strconv.Atoi(string(v))
				if err != nil {
					return fmt.Errorf("decode counter %q: %w", pattern, err)
				}
				snap.UndoCounts[pattern] = n
				return nil
			})
			if err != nil {
				return err
			}
		}

		prefix = []byte(suppressedPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			snap.Suppressed = append(snap.Suppressed, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load rules: %w", err)
	}
	return snap, nil
}

func (b *BadgerBackend) Save(_ context.Context, s Snapshot) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, countPrefix); err != nil {
			return err
		}
		if err := deletePrefix(txn, suppressedPrefix); err != nil {
			return err
		}
		for p, n := range s.UndoCounts {
			if err := txn.Set([]byte(countPrefix+p), []byte(strconv.Itoa(n))); err != nil {
				return fmt.Errorf("set counter: %w", err)
			}
		}
		for _, p := range s.Suppressed {
			if err := txn.Set([]byte(suppressedPrefix+p), nil); err != nil {
				return fmt.Errorf("set suppressed: %w", err)
			}
		}
		return nil
	})
}

func deletePrefix(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("delete %q: %w", k, err)
		}
	}
	return nil
}

func (b *BadgerBackend) Close() error { return b.db.Close() }
