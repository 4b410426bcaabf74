// Package datalog serves fact queries from a directory of tab-separated
// .facts files, as written by Doop, evaluated with Mangle rules.
package datalog

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ptagraph/internal/facts"
	"ptagraph/internal/logging"
	"ptagraph/internal/mangle"
)

//go:embed schema.mg
var schema string

// Relation binds a .facts file to the base predicate it populates.
type Relation struct {
	File      string
	Predicate string
	Arity     int
}

// Relations lists the files read from a database directory.
var Relations = []Relation{
	{"Reachable.facts", "reachable", 1},
	{"ThisVar.facts", "this_var", 2},
	{"VarPointsTo.facts", "vpt", 4},
	{"ObjectIn.facts", "object_in", 2},
	{"CallSiteIn.facts", "callsite_in", 2},
	{"CallGraphEdge.facts", "cge", 4},
	{"SpecialObject.facts", "special_object", 1},
	{"DeclaringClassAllocation.facts", "declaring_class_alloc", 2},
	{"VarIn.facts", "var_in", 2},
}

// maxLine bounds a single fact line; signatures of generated code get long.
const maxLine = 16 * 1024 * 1024

// Source is a facts.Source over an evaluated Mangle program.
type Source struct {
	dir    string
	engine *mangle.Engine

	mu     sync.RWMutex
	closed bool
}

// ResolveDir returns the directory facts are read from: <dir>/<app> when it
// exists, dir otherwise.
func ResolveDir(dir, app string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", facts.ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", facts.ErrSourceUnavailable, dir)
	}
	if app != "" {
		sub := filepath.Join(dir, app)
		if info, err := os.Stat(sub); err == nil && info.IsDir() {
			return sub, nil
		}
	}
	return dir, nil
}

// Open loads every relation file under the resolved directory into a Mangle
// engine and evaluates the derivation rules. Files are read concurrently; a
// missing file is an empty relation.
func Open(ctx context.Context, dir, app string, cfg mangle.Config) (*Source, error) {
	root, err := ResolveDir(dir, app)
	if err != nil {
		return nil, err
	}

	timer := logging.StartTimer(logging.CategoryFacts, "load "+root)
	engine := mangle.NewEngine(cfg)
	if err := engine.LoadSchemaString(schema); err != nil {
		return nil, fmt.Errorf("load fact schema: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rel := range Relations {
		g.Go(func() error {
			tuples, err := readFacts(gctx, filepath.Join(root, rel.File), rel.Arity)
			if err != nil {
				return err
			}
			n, err := engine.AddTuples(rel.Predicate, tuples)
			if err != nil {
				return fmt.Errorf("%s: %w", rel.File, err)
			}
			logging.FactsDebug("%s: %d lines, %d distinct facts", rel.File, len(tuples), n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = engine.Close()
		return nil, err
	}

	if err := engine.Evaluate(ctx); err != nil {
		return nil, fmt.Errorf("evaluate fact rules: %w", err)
	}
	timer.StopWithInfo()

	return &Source{dir: root, engine: engine}, nil
}

// readFacts parses one tab-separated file. A missing file yields no tuples.
func readFacts(ctx context.Context, path string, arity int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.FactsDebug("%s not present, treating as empty", filepath.Base(path))
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", facts.ErrSourceUnavailable, err)
	}
	defer f.Close()

	var tuples [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for scanner.Scan() {
		line++
		if line%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != arity {
			return nil, fmt.Errorf("%s:%d: expected %d tab-separated fields, got %d",
				filepath.Base(path), line, arity, len(fields))
		}
		tuples = append(tuples, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return tuples, nil
}

// Dir returns the directory the facts were read from.
func (s *Source) Dir() string { return s.dir }

// Stats returns per-predicate fact counts of the underlying engine.
func (s *Source) Stats() mangle.Stats { return s.engine.GetStats() }

// Query implements facts.Source. The stream scans the predicate named by q
// when it is drained.
func (s *Source) Query(ctx context.Context, q facts.Query) (*facts.Stream, error) {
	if !facts.Known(q) {
		return nil, fmt.Errorf("%w: %s", facts.ErrUnknownQuery, q)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: datalog source closed", facts.ErrSourceUnavailable)
	}
	if !s.engine.HasPredicate(q.Predicate) {
		return nil, fmt.Errorf("%w: predicate %s missing from schema", facts.ErrSourceUnavailable, q.Predicate)
	}

	logging.FactsDebug("query %s: %d facts", q, s.engine.Count(q.Predicate))
	return facts.NewStream(q, func(yield func(facts.Tuple) error) error {
		return s.engine.Scan(ctx, q.Predicate, func(row []string) error {
			return yield(facts.Tuple(row))
		})
	}), nil
}

// Close implements facts.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Close()
}
