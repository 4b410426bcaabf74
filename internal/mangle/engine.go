// Package mangle wraps the Google Mangle Datalog engine for bulk loading of
// string-valued relations and rule evaluation over them.
package mangle

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"ptagraph/internal/logging"
)

// Config holds Mangle engine configuration.
type Config struct {
	FactLimit    int           // 0 = unlimited
	QueryTimeout time.Duration // bound on rule evaluation, 0 = none
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FactLimit:    0,
		QueryTimeout: 5 * time.Minute,
	}
}

// Engine holds one fact store and the program analysed from its schema.
type Engine struct {
	config Config

	mu              sync.RWMutex
	store           factstore.ConcurrentFactStore
	baseStore       factstore.FactStoreWithRemove
	programInfo     *analysis.ProgramInfo
	predicateIndex  map[string]ast.PredicateSym
	schemaFragments []parse.SourceUnit
	factCount       int
	factLimitWarned bool
	evaluated       bool
}

// Stats contains engine statistics.
type Stats struct {
	TotalFacts      int
	PredicateCounts map[string]int
	LastUpdate      time.Time
}

// NewEngine creates a new Mangle engine instance.
func NewEngine(cfg Config) *Engine {
	baseStore := factstore.NewSimpleInMemoryStore()
	return &Engine{
		config:         cfg,
		baseStore:      baseStore,
		store:          factstore.NewConcurrentFactStore(baseStore),
		predicateIndex: make(map[string]ast.PredicateSym),
	}
}

// LoadSchemaString parses and analyses a schema fragment. Fragments
// accumulate; every call re-analyses the whole program.
func (e *Engine) LoadSchemaString(schema string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("failed to parse schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.schemaFragments = append(e.schemaFragments, unit)
	if err := e.rebuildProgramLocked(); err != nil {
		e.schemaFragments = e.schemaFragments[:len(e.schemaFragments)-1]
		return fmt.Errorf("failed to analyze schema: %w", err)
	}
	return nil
}

// rebuildProgramLocked analyzes all loaded schema fragments and refreshes the predicate index.
func (e *Engine) rebuildProgramLocked() error {
	var clauses []ast.Clause
	var decls []ast.Decl
	for _, fragment := range e.schemaFragments {
		clauses = append(clauses, fragment.Clauses...)
		decls = append(decls, fragment.Decls...)
	}

	programInfo, err := analysis.AnalyzeOneUnit(parse.SourceUnit{Clauses: clauses, Decls: decls}, nil)
	if err != nil {
		return err
	}

	e.programInfo = programInfo
	e.predicateIndex = make(map[string]ast.PredicateSym, len(programInfo.Decls))
	for sym := range programInfo.Decls {
		e.predicateIndex[sym.Symbol] = sym
	}
	e.evaluated = false
	return nil
}

// HasPredicate reports whether the schema declares predicate.
func (e *Engine) HasPredicate(predicate string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.predicateIndex[predicate]
	return ok
}

// Arity returns the declared arity of predicate.
func (e *Engine) Arity(predicate string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sym, ok := e.predicateIndex[predicate]
	return sym.Arity, ok
}

// AddTuples inserts string tuples as facts of a declared predicate. Every
// field is stored as a Mangle string constant, whatever it looks like.
// Duplicates are absorbed by the store. It returns the number of new facts.
func (e *Engine) AddTuples(predicate string, tuples [][]string) (int, error) {
	if len(tuples) == 0 {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.programInfo == nil {
		return 0, fmt.Errorf("no schemas loaded; call LoadSchemaString first")
	}
	sym, ok := e.predicateIndex[predicate]
	if !ok {
		return 0, fmt.Errorf("predicate %s is not declared in schemas", predicate)
	}

	added := 0
	for _, tuple := range tuples {
		if len(tuple) != sym.Arity {
			return added, fmt.Errorf("predicate %s expects %d args, got %d", predicate, sym.Arity, len(tuple))
		}
		if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
			return added, fmt.Errorf("fact limit exceeded: %d", e.config.FactLimit)
		}
		args := make([]ast.BaseTerm, len(tuple))
		for i, field := range tuple {
			args[i] = ast.String(field)
		}
		if e.store.Add(ast.Atom{Predicate: sym, Args: args}) {
			e.factCount++
			added++
			e.maybeWarnFactLimit()
		}
	}
	e.evaluated = false
	return added, nil
}

func (e *Engine) maybeWarnFactLimit() {
	if e.config.FactLimit == 0 || e.factLimitWarned {
		return
	}
	utilization := float64(e.factCount) / float64(e.config.FactLimit)
	if utilization >= 0.85 {
		logging.Get(logging.CategoryKernel).Warn("fact store is %.1f%% of configured capacity (%d / %d)",
			utilization*100, e.factCount, e.config.FactLimit)
		e.factLimitWarned = true
	}
}

// Evaluate runs the program's rules to fixpoint over the loaded facts.
// Evaluation is bounded by ctx and by the configured query timeout. After a
// timeout the engine must be discarded: evaluation keeps running in the
// background and holds the write lock until it finishes.
func (e *Engine) Evaluate(ctx context.Context) error {
	if e.config.QueryTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
			defer cancel()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := logging.StartTimer(logging.CategoryKernel, "rule evaluation")
	errChan := make(chan error, 1)
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.programInfo == nil {
			errChan <- fmt.Errorf("no schemas loaded; call LoadSchemaString first")
			return
		}
		stats, err := mengine.EvalProgramWithStats(e.programInfo, e.store)
		if err != nil {
			errChan <- err
			return
		}
		e.evaluated = true
		logging.KernelDebug("evaluation stats: %+v", stats)
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		timer.Stop()
		return err
	case <-ctx.Done():
		return fmt.Errorf("rule evaluation stopped after %v: %w", timer.Stop(), ctx.Err())
	}
}

// Evaluated reports whether the rules have been evaluated since the last change.
func (e *Engine) Evaluated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.evaluated
}

// Scan calls fn with every fact of predicate, as strings. It stops at the
// first error from fn or when ctx is done.
func (e *Engine) Scan(ctx context.Context, predicate string, fn func([]string) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sym, ok := e.predicateIndex[predicate]
	if !ok {
		return fmt.Errorf("predicate %s is not declared", predicate)
	}

	return e.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		row := make([]string, len(atom.Args))
		for i, arg := range atom.Args {
			row[i] = termToString(arg)
		}
		return fn(row)
	})
}

// Count returns the number of facts stored for predicate.
func (e *Engine) Count(predicate string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sym, ok := e.predicateIndex[predicate]
	if !ok {
		return 0
	}
	n := 0
	_ = e.store.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
		n++
		return nil
	})
	return n
}

// Predicates lists the declared predicates, sorted.
func (e *Engine) Predicates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.predicateIndex))
	for name := range e.predicateIndex {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetStats returns fact counts per stored predicate.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int)
	for _, sym := range e.store.ListPredicates() {
		localCount := 0
		_ = e.store.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			localCount++
			return nil
		})
		counts[sym.Symbol] = localCount
	}

	return Stats{
		TotalFacts:      e.store.EstimateFactCount(),
		PredicateCounts: counts,
		LastUpdate:      time.Now(),
	}
}

// Clear drops all facts but keeps the schema.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseStore = factstore.NewSimpleInMemoryStore()
	e.store = factstore.NewConcurrentFactStore(e.baseStore)
	e.factCount = 0
	e.factLimitWarned = false
	e.evaluated = false
}

// Close releases the fact store.
func (e *Engine) Close() error {
	e.Clear()
	return nil
}

func termToString(term ast.BaseTerm) string {
	c, ok := term.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", term)
	}
	switch c.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return c.Symbol
	case ast.NumberType:
		return strconv.FormatInt(c.NumValue, 10)
	case ast.Float64Type:
		return strconv.FormatFloat(math.Float64frombits(uint64(c.NumValue)), 'g', -1, 64)
	default:
		return c.String()
	}
}
