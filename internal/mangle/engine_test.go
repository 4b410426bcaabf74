package mangle

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
Decl edge(From, To) bound [/string, /string].
Decl path(From, To) bound [/string, /string].

path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
`

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine := NewEngine(cfg)
	require.NoError(t, engine.LoadSchemaString(testSchema))
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func scanAll(t *testing.T, engine *Engine, predicate string) [][]string {
	t.Helper()
	var rows [][]string
	err := engine.Scan(context.Background(), predicate, func(row []string) error {
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i][0] != rows[j][0] {
			return rows[i][0] < rows[j][0]
		}
		return rows[i][1] < rows[j][1]
	})
	return rows
}

func TestNewEngine(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	if engine == nil {
		t.Fatal("NewEngine() returned nil engine")
	}
	if engine.HasPredicate("edge") {
		t.Error("no predicates before a schema is loaded")
	}
}

func TestEngineLoadSchemaString(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	assert.Equal(t, []string{"edge", "path"}, engine.Predicates())
	arity, ok := engine.Arity("edge")
	require.True(t, ok)
	assert.Equal(t, 2, arity)

	assert.Error(t, engine.LoadSchemaString("Decl broken(X"))
	assert.True(t, engine.HasPredicate("path"), "a failed fragment must not drop earlier ones")
}

func TestEngineAddTuplesKeepsStrings(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	// Identifier-like and signature-like values must both come back verbatim.
	n, err := engine.AddTuples("edge", [][]string{
		{"main", "<app.A: void run()>"},
		{"main", "<app.A: void run()>"},
		{"/looks/like/a/name", "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "duplicates are absorbed")
	assert.Equal(t, 2, engine.Count("edge"))

	rows := scanAll(t, engine, "edge")
	assert.Equal(t, [][]string{
		{"/looks/like/a/name", "42"},
		{"main", "<app.A: void run()>"},
	}, rows)
}

func TestEngineAddTuplesErrors(t *testing.T) {
	t.Run("no schema", func(t *testing.T) {
		_, err := NewEngine(DefaultConfig()).AddTuples("edge", [][]string{{"a", "b"}})
		assert.Error(t, err)
	})

	engine := newTestEngine(t, DefaultConfig())
	t.Run("undeclared predicate", func(t *testing.T) {
		_, err := engine.AddTuples("missing", [][]string{{"a"}})
		assert.Error(t, err)
	})
	t.Run("wrong arity", func(t *testing.T) {
		_, err := engine.AddTuples("edge", [][]string{{"a"}})
		assert.Error(t, err)
	})
	t.Run("empty batch", func(t *testing.T) {
		n, err := engine.AddTuples("edge", nil)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestEngineFactLimit(t *testing.T) {
	engine := newTestEngine(t, Config{FactLimit: 2})

	n, err := engine.AddTuples("edge", [][]string{{"a", "b"}, {"b", "c"}, {"c", "d"}})
	assert.Error(t, err)
	assert.Equal(t, 2, n)
}

func TestEngineEvaluate(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	_, err := engine.AddTuples("edge", [][]string{{"a", "b"}, {"b", "c"}})
	require.NoError(t, err)
	assert.False(t, engine.Evaluated())

	require.NoError(t, engine.Evaluate(context.Background()))
	assert.True(t, engine.Evaluated())

	assert.Equal(t, [][]string{{"a", "b"}, {"a", "c"}, {"b", "c"}}, scanAll(t, engine, "path"))

	stats := engine.GetStats()
	assert.Equal(t, 2, stats.PredicateCounts["edge"])
	assert.Equal(t, 3, stats.PredicateCounts["path"])
}

func TestEngineEvaluateCancelled(t *testing.T) {
	engine := newTestEngine(t, Config{QueryTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, engine.Evaluate(ctx), context.Canceled)
}

func TestEngineScanStops(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	_, err := engine.AddTuples("edge", [][]string{{"a", "b"}, {"b", "c"}, {"c", "d"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = engine.Scan(ctx, "edge", func([]string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	assert.Error(t, engine.Scan(context.Background(), "nope", func([]string) error { return nil }))
}

func TestEngineClear(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	_, err := engine.AddTuples("edge", [][]string{{"a", "b"}})
	require.NoError(t, err)

	engine.Clear()
	assert.Equal(t, 0, engine.Count("edge"))
	assert.True(t, engine.HasPredicate("edge"), "Clear keeps the schema")
}
