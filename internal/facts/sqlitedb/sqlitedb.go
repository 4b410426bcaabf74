// Package sqlitedb serves fact queries from a SQLite database holding one
// table per query predicate, with text columns c0..cN.
package sqlitedb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"ptagraph/internal/facts"
	"ptagraph/internal/logging"
)

// AppColumn, when present in a table, restricts rows to one application.
const AppColumn = "app"

// Source is a read-only facts.Source over a SQLite file. The connection is
// not safe for concurrent use, so streams are drained one at a time.
type Source struct {
	path string
	app  string

	mu   sync.Mutex
	conn *sqlite.Conn
}

// Open opens path read-only. A missing file is facts.ErrSourceUnavailable.
func Open(path, app string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", facts.ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", facts.ErrSourceUnavailable, path)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", facts.ErrSourceUnavailable, err)
	}
	logging.Facts("opened sqlite fact database %s (app %q)", path, app)
	return &Source{path: path, app: app, conn: conn}, nil
}

// Path returns the database file.
func (s *Source) Path() string { return s.path }

type tableShape struct {
	exists bool
	hasApp bool
}

func (s *Source) shapeLocked(table string, arity int) (tableShape, error) {
	var shape tableShape
	cols := make(map[string]bool)
	err := sqlitex.Execute(s.conn, "SELECT name FROM pragma_table_info(?)", &sqlitex.ExecOptions{
		Args: []any{table},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			cols[stmt.ColumnText(0)] = true
			return nil
		},
	})
	if err != nil {
		return shape, fmt.Errorf("inspect table %s: %w", table, err)
	}
	if len(cols) == 0 {
		return shape, nil
	}
	shape.exists = true
	for i := 0; i < arity; i++ {
		if !cols[column(i)] {
			return shape, fmt.Errorf("table %s has no column %s", table, column(i))
		}
	}
	shape.hasApp = cols[AppColumn]
	return shape, nil
}

func column(i int) string { return fmt.Sprintf("c%d", i) }

func selectSQL(table string, arity int, filterApp bool) string {
	cols := make([]string, arity)
	for i := range cols {
		cols[i] = column(i)
	}
	query := fmt.Sprintf("SELECT %s FROM %q", strings.Join(cols, ", "), table)
	if filterApp {
		query += " WHERE " + AppColumn + " = ?"
	}
	return query
}

// Query implements facts.Source. A missing table is an empty relation.
func (s *Source) Query(ctx context.Context, q facts.Query) (*facts.Stream, error) {
	if !facts.Known(q) {
		return nil, fmt.Errorf("%w: %s", facts.ErrUnknownQuery, q)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("%w: sqlite source closed", facts.ErrSourceUnavailable)
	}
	shape, err := s.shapeLocked(q.Predicate, q.Arity)
	if err != nil {
		return nil, err
	}
	if !shape.exists {
		logging.FactsDebug("table %s absent, treating as empty", q.Predicate)
		return facts.SliceStream(q, nil), nil
	}

	filter := shape.hasApp && s.app != ""
	query := selectSQL(q.Predicate, q.Arity, filter)
	var args []any
	if filter {
		args = []any{s.app}
	}

	return facts.NewStream(q, func(yield func(facts.Tuple) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn == nil {
			return fmt.Errorf("%w: sqlite source closed", facts.ErrSourceUnavailable)
		}
		prev := s.conn.SetInterrupt(ctx.Done())
		defer s.conn.SetInterrupt(prev)

		err := sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				t := make(facts.Tuple, q.Arity)
				for i := range t {
					t[i] = stmt.ColumnText(i)
				}
				return yield(t)
			},
		})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}), nil
}

// Close implements facts.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Export drains every catalogue query of src into a new SQLite file at
// path, replacing any existing file. Each table carries an app column set
// to app so several applications can share one file.
func Export(ctx context.Context, src facts.Source, path, app string) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
	}()

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	for _, q := range facts.Queries() {
		if err := exportQuery(ctx, conn, src, q, app); err != nil {
			return fmt.Errorf("export %s: %w", q, err)
		}
	}
	return nil
}

func exportQuery(ctx context.Context, conn *sqlite.Conn, src facts.Source, q facts.Query, app string) error {
	cols := make([]string, q.Arity)
	for i := range cols {
		cols[i] = column(i) + " TEXT NOT NULL"
	}
	ddl := fmt.Sprintf("CREATE TABLE %q (%s, %s TEXT NOT NULL)", q.Predicate, strings.Join(cols, ", "), AppColumn)
	if err := sqlitex.ExecuteTransient(conn, ddl, nil); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", q.Arity+1), ", ")
	stmt, _, err := conn.PrepareTransient(fmt.Sprintf("INSERT INTO %q VALUES (%s)", q.Predicate, placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	stream, err := src.Query(ctx, q)
	if err != nil {
		return err
	}
	n := 0
	err = stream.ForEach(func(t facts.Tuple) error {
		for i, field := range t {
			stmt.BindText(i+1, field)
		}
		stmt.BindText(q.Arity+1, app)
		if _, err := stmt.Step(); err != nil {
			return err
		}
		n++
		return stmt.Reset()
	})
	if err != nil {
		return err
	}
	logging.FactsDebug("exported %s: %d rows", q, n)
	return nil
}
