package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	runSig  = "<app.Main: void run()>"
	sizeSig = "<app.List: int size()>"
)

func writeFacts(t *testing.T, dir, file string, rows ...[]string) {
	t.Helper()
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, "\t"))
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(b.String()), 0644))
}

func factsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFacts(t, dir, "Reachable.facts", []string{runSig}, []string{sizeSig})
	writeFacts(t, dir, "ThisVar.facts",
		[]string{runSig, "run/@this"},
		[]string{sizeSig, "size/@this"})
	writeFacts(t, dir, "VarPointsTo.facts",
		[]string{"<<immutable-hctx>>", "new app.Main/0", "[]", "run/@this"},
		[]string{"<<immutable-hctx>>", "new app.List/0", "[]", "size/@this"},
		[]string{"<<immutable-hctx>>", "new app.List/0", "[]", "run/list"})
	writeFacts(t, dir, "ObjectIn.facts", []string{"new app.List/0", runSig})
	writeFacts(t, dir, "CallSiteIn.facts", []string{"run/invoke0", runSig})
	writeFacts(t, dir, "CallGraphEdge.facts", []string{"[]", "run/invoke0", "[]", sizeSig})
	writeFacts(t, dir, "DeclaringClassAllocation.facts",
		[]string{"new app.Main/0", "app.Main"},
		[]string{"new app.List/0", "app.Main"})
	writeFacts(t, dir, "VarIn.facts",
		[]string{"run/@this", runSig},
		[]string{"run/list", runSig})
	return dir
}

// execute runs the root command with every location flag set explicitly, so
// flag state left by an earlier test never leaks in.
func execute(t *testing.T, db, cacheDir string, args ...string) (string, error) {
	t.Helper()
	for _, env := range []string{"PTAGRAPH_DB", "PTAGRAPH_CACHE", "PTAGRAPH_APP", "PTAGRAPH_DEBUG"} {
		t.Setenv(env, "")
	}
	var out bytes.Buffer
	full := append([]string{
		"--config", filepath.Join(t.TempDir(), "absent.yaml"),
		"--db", db,
		"--cache", cacheDir,
		"--app", "demo",
	}, args...)
	rootCmd.SetArgs(full)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	out, err := execute(t, factsDir(t), t.TempDir(), "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "methods:           2 (2 instance)")
	assert.Contains(t, out, "reachable methods: 2")
	assert.Contains(t, out, "objects:           2 (0 special)")
	assert.Contains(t, out, "unresolved calls:  0 edges")
}

func TestQueryCommand(t *testing.T) {
	db, cacheDir := factsDir(t), t.TempDir()

	out, err := execute(t, db, cacheDir, "query", "callees", runSig)
	require.NoError(t, err)
	assert.Equal(t, sizeSig+"\n", out)

	out, err = execute(t, db, cacheDir, "query", "vars", runSig)
	require.NoError(t, err)
	assert.Equal(t, "run/@this\nrun/list\n", out)

	out, err = execute(t, db, cacheDir, "query", "decl-type", sizeSig)
	require.NoError(t, err)
	assert.Equal(t, "app.List\n", out)

	out, err = execute(t, db, cacheDir, "query", "alloc-method", "new app.List/0")
	require.NoError(t, err)
	assert.Equal(t, runSig+"\n", out)

	out, err = execute(t, db, cacheDir, "query", "pts-size", "run/list")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestQueryCommandErrors(t *testing.T) {
	db, cacheDir := factsDir(t), t.TempDir()

	_, err := execute(t, db, cacheDir, "query", "nope", runSig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown accessor")

	_, err = execute(t, db, cacheDir, "query", "callees", "<missing.Type: void x()>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")
}

func TestCacheCommands(t *testing.T) {
	db, cacheDir := factsDir(t), t.TempDir()

	out, err := execute(t, db, cacheDir, "cache", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "is empty")

	_, err = execute(t, db, cacheDir, "stats")
	require.NoError(t, err)

	out, err = execute(t, db, cacheDir, "cache", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "QUERY")
	assert.Contains(t, out, "variable-in-method")

	_, err = execute(t, db, cacheDir, "cache", "clear")
	require.NoError(t, err)
	out, err = execute(t, db, cacheDir, "cache", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "is empty")
}

func TestExportCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "facts.db")
	out, err := execute(t, factsDir(t), t.TempDir(), "export", target)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	out, err = execute(t, target, t.TempDir(), "query", "callees", runSig)
	require.NoError(t, err)
	assert.Equal(t, sizeSig+"\n", out)
}
