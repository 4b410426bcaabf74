// Package cache keeps the tuples of fully drained fact queries in a
// per-application SQLite file, so later runs can skip the fact database.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ptagraph/internal/facts"
	"ptagraph/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS cached_query (
	name TEXT PRIMARY KEY,
	arity INTEGER NOT NULL,
	rows INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cached_tuple (
	query TEXT NOT NULL,
	seq INTEGER NOT NULL,
	fields TEXT NOT NULL,
	PRIMARY KEY (query, seq)
);
`

// Entry describes one cached query.
type Entry struct {
	Name      string
	Arity     int
	Rows      int
	CreatedAt time.Time
}

// Cache is a facts.Source that answers from its SQLite file when it can and
// from the wrapped backend otherwise.
type Cache struct {
	backend facts.Source
	db      *sql.DB
	path    string
	app     string
}

// FileName returns the cache file name used for app.
func FileName(app string) string {
	if app == "" {
		app = "default"
	}
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, app)
	return safe + ".db"
}

// Wrap opens (creating if needed) the cache for app under dir in front of
// backend. backend may be nil, in which case only cached queries succeed.
func Wrap(backend facts.Source, dir, app string) (*Cache, error) {
	timer := logging.StartTimer(logging.CategoryCache, "open cache")
	defer timer.Stop()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	path := filepath.Join(dir, FileName(app))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CacheDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CacheDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	logging.Cache("cache for app %q at %s", app, path)
	return &Cache{backend: backend, db: db, path: path, app: app}, nil
}

// Path returns the cache file.
func (c *Cache) Path() string { return c.path }

// Query implements facts.Source.
func (c *Cache) Query(ctx context.Context, q facts.Query) (*facts.Stream, error) {
	if !facts.Known(q) {
		return nil, fmt.Errorf("%w: %s", facts.ErrUnknownQuery, q)
	}

	var arity int
	err := c.db.QueryRowContext(ctx, "SELECT arity FROM cached_query WHERE name = ?", q.Name).Scan(&arity)
	switch {
	case err == nil && arity == q.Arity:
		logging.CacheDebug("hit %s", q)
		return c.replay(ctx, q), nil
	case err == nil:
		logging.Get(logging.CategoryCache).Warn("cached %s has arity %d, ignoring", q, arity)
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("cache lookup %s: %w", q, err)
	}

	if c.backend == nil {
		return nil, fmt.Errorf("%w: %s is not cached and no fact database is configured", facts.ErrSourceUnavailable, q)
	}
	logging.CacheDebug("miss %s", q)
	inner, err := c.backend.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return c.record(ctx, q, inner), nil
}

func (c *Cache) replay(ctx context.Context, q facts.Query) *facts.Stream {
	return facts.NewStream(q, func(yield func(facts.Tuple) error) error {
		rows, err := c.db.QueryContext(ctx, "SELECT fields FROM cached_tuple WHERE query = ? ORDER BY seq", q.Name)
		if err != nil {
			return fmt.Errorf("%w: read cache: %v", facts.ErrSourceUnavailable, err)
		}
		defer rows.Close()

		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			var t facts.Tuple
			if err := json.Unmarshal([]byte(raw), &t); err != nil {
				return fmt.Errorf("corrupt cache entry for %s: %w", q, err)
			}
			if err := yield(t); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// record passes inner through and stores its tuples. The cache entry is
// committed only if inner is drained completely; a failing cache write is
// logged and never disturbs the stream.
func (c *Cache) record(ctx context.Context, q facts.Query, inner *facts.Stream) *facts.Stream {
	return facts.NewStream(q, func(yield func(facts.Tuple) error) error {
		w := c.beginWrite(ctx, q)
		err := inner.ForEach(func(t facts.Tuple) error {
			w.add(t)
			return yield(t)
		})
		if err != nil {
			w.abort()
			return err
		}
		w.commit()
		return nil
	})
}

type writer struct {
	q    facts.Query
	tx   *sql.Tx
	stmt *sql.Stmt
	seq  int
	err  error
}

func (c *Cache) beginWrite(ctx context.Context, q facts.Query) *writer {
	w := &writer{q: q}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		w.fail(err)
		return w
	}
	w.tx = tx
	if _, err := tx.Exec("DELETE FROM cached_tuple WHERE query = ?", q.Name); err != nil {
		w.fail(err)
		return w
	}
	w.stmt, err = tx.Prepare("INSERT INTO cached_tuple (query, seq, fields) VALUES (?, ?, ?)")
	if err != nil {
		w.fail(err)
	}
	return w
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
		logging.Get(logging.CategoryCache).Warn("not caching %s: %v", w.q, err)
	}
}

func (w *writer) add(t facts.Tuple) {
	if w.err != nil {
		return
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		w.fail(err)
		return
	}
	if _, err := w.stmt.Exec(w.q.Name, w.seq, string(data)); err != nil {
		w.fail(err)
		return
	}
	w.seq++
}

func (w *writer) abort() {
	if w.stmt != nil {
		w.stmt.Close()
	}
	if w.tx != nil {
		_ = w.tx.Rollback()
	}
}

func (w *writer) commit() {
	if w.err != nil {
		w.abort()
		return
	}
	w.stmt.Close()
	_, err := w.tx.Exec(
		"INSERT OR REPLACE INTO cached_query (name, arity, rows, created_at) VALUES (?, ?, ?, ?)",
		w.q.Name, w.q.Arity, w.seq, time.Now().Unix(),
	)
	if err != nil {
		w.fail(err)
		_ = w.tx.Rollback()
		return
	}
	if err := w.tx.Commit(); err != nil {
		w.fail(err)
		return
	}
	logging.CacheDebug("stored %s: %d tuples", w.q, w.seq)
}

// Entries lists the cached queries, by name.
func (c *Cache) Entries() ([]Entry, error) {
	rows, err := c.db.Query("SELECT name, arity, rows, created_at FROM cached_query ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Name, &e.Arity, &e.Rows, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes every cached query.
func (c *Cache) Clear() error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range []string{"DELETE FROM cached_tuple", "DELETE FROM cached_query"} {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Cache("cache %s cleared", c.path)
	return nil
}

// Close closes the cache and the wrapped backend.
func (c *Cache) Close() error {
	err := c.db.Close()
	if c.backend != nil {
		if berr := c.backend.Close(); err == nil {
			err = berr
		}
	}
	return err
}
