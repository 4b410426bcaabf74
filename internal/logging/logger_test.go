package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var allCategories = []Category{
	CategoryBoot,
	CategoryFacts,
	CategoryKernel,
	CategoryCache,
	CategoryPipeline,
	CategoryQuery,
}

// resetAfter restores the silent production state once the test is done.
func resetAfter(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		CloseAll()
		configMu.Lock()
		config = Options{}
		logLevel = LevelInfo
		configMu.Unlock()
		loggersMu.Lock()
		logsDir = ""
		loggersMu.Unlock()
	})
}

func readLog(t *testing.T, dir string, cat Category) string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_"+string(cat)+".log") {
			content, err := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if err != nil {
				t.Fatalf("Failed to read log file for %s: %v", cat, err)
			}
			return string(content)
		}
	}
	return ""
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	resetAfter(t)
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	for _, cat := range allCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Boot("Convenience boot log")
	Facts("Convenience facts log")
	Kernel("Convenience kernel log")
	Cache("Convenience cache log")
	Pipeline("Convenience pipeline log")
	QueryDebug("Convenience query log")

	CloseAll()

	for _, cat := range allCategories {
		content := readLog(t, tempDir, cat)
		if content == "" {
			t.Errorf("No log content for category: %s", cat)
			continue
		}
		if !strings.Contains(content, "Test debug message for "+string(cat)) {
			t.Errorf("debug line missing from %s log", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug mode is off
func TestDebugModeDisabled(t *testing.T) {
	resetAfter(t)
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: false}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}

	for _, cat := range allCategories {
		Get(cat).Error("should not be written")
	}
	Pipeline("should not be written")

	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist in production mode, stat err = %v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	resetAfter(t)
	tempDir := t.TempDir()

	opts := Options{DebugMode: true, Level: "debug", Categories: map[string]bool{"kernel": false}}
	if err := Initialize(tempDir, opts); err != nil {
		t.Fatal(err)
	}
	if IsCategoryEnabled(CategoryKernel) {
		t.Error("kernel should be disabled")
	}
	if !IsCategoryEnabled(CategoryCache) {
		t.Error("unlisted category should default to enabled")
	}

	Kernel("hidden")
	Cache("visible")
	CloseAll()

	if content := readLog(t, tempDir, CategoryKernel); content != "" {
		t.Errorf("kernel log should be empty, got %q", content)
	}
	if content := readLog(t, tempDir, CategoryCache); !strings.Contains(content, "visible") {
		t.Errorf("cache log missing entry, got %q", content)
	}
}

func TestLevelFilter(t *testing.T) {
	resetAfter(t)
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatal(err)
	}
	l := Get(CategoryFacts)
	l.Debug("debug-line")
	l.Info("info-line")
	l.Warn("warn-line")
	l.Error("error-line")
	CloseAll()

	content := readLog(t, tempDir, CategoryFacts)
	for _, hidden := range []string{"debug-line", "info-line"} {
		if strings.Contains(content, hidden) {
			t.Errorf("%s should be filtered at warn level", hidden)
		}
	}
	for _, shown := range []string{"warn-line", "error-line"} {
		if !strings.Contains(content, shown) {
			t.Errorf("%s missing at warn level", shown)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	resetAfter(t)
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: true, Level: "info", JSONFormat: true}); err != nil {
		t.Fatal(err)
	}
	Get(CategoryPipeline).StructuredLog("INFO", "pass done", map[string]interface{}{"pass": "call graph"})
	CloseAll()

	content := readLog(t, tempDir, CategoryPipeline)
	idx := strings.Index(content, "{")
	if idx < 0 {
		t.Fatalf("no JSON entry in %q", content)
	}
	var entry StructuredLogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(content[idx:])), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry.Category != "pipeline" || entry.Message != "pass done" || entry.Fields["pass"] != "call graph" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	resetAfter(t)
	if err := Initialize("", Options{DebugMode: true}); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestConcurrentGet(t *testing.T) {
	resetAfter(t)
	tempDir := t.TempDir()
	if err := Initialize(tempDir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	loggersSeen := make([]*Logger, 8)
	for i := range loggersSeen {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loggersSeen[i] = Get(CategoryQuery)
			loggersSeen[i].Debug("reader %d", i)
		}(i)
	}
	wg.Wait()

	for _, l := range loggersSeen[1:] {
		if l != loggersSeen[0] {
			t.Fatal("Get should return one logger per category")
		}
	}
}

func TestTimer(t *testing.T) {
	resetAfter(t)

	timer := StartTimer(CategoryPipeline, "op")
	time.Sleep(2 * time.Millisecond)
	if d := timer.Stop(); d < 2*time.Millisecond {
		t.Errorf("Stop returned %v", d)
	}
	if d := StartTimer(CategoryPipeline, "op").StopWithThreshold(time.Hour); d >= time.Hour {
		t.Errorf("StopWithThreshold returned %v", d)
	}
	if d := StartTimer(CategoryPipeline, "op").StopWithInfo(); d < 0 {
		t.Errorf("StopWithInfo returned %v", d)
	}
}
