package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestAllCategoriesLog mirrors the teacher's own logging smoke test: every
// category must produce a log file under debug_mode, and every convenience
// function must reach its category's file without panicking.
func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".fleet")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`
	configPath := filepath.Join(configDir, "logging.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Fatal("expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryFleet, CategoryController, CategoryPlanner,
		CategoryGuard, CategoryNormalizer, CategorySkillEngine, CategoryReflex,
		CategoryRateLimit, CategoryLockMgr, CategoryAdmission, CategoryStore,
		CategorySnapshot,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("category %s should be enabled with no categories filter set", cat)
		}
		logger := Get(cat)
		logger.Info("info message for %s", cat)
		logger.Debug("debug message for %s", cat)
		logger.Warn("warn message for %s", cat)
		logger.Error("error message for %s", cat)
	}

	Boot("boot convenience log")
	Fleet("fleet convenience log")
	Controller("controller convenience log")
	Planner("planner convenience log")
	Guard("guard convenience log")
	Normalizer("normalizer convenience log")
	SkillEngine("skillengine convenience log")
	Reflex("reflex convenience log")
	RateLimit("ratelimit convenience log")
	LockMgr("lockmgr convenience log")
	Admission("admission convenience log")
	Store("store convenience log")
	Snapshot("snapshot convenience log")

	CloseAll()

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}
	if len(entries) != len(categories) {
		t.Errorf("expected %d log files, got %d", len(categories), len(entries))
	}

	bootLogPath := ""
	for _, e := range entries {
		if strings.Contains(e.Name(), string(CategoryBoot)) {
			bootLogPath = filepath.Join(logsDir, e.Name())
		}
	}
	if bootLogPath == "" {
		t.Fatal("expected a boot category log file")
	}
	data, err := os.ReadFile(bootLogPath)
	if err != nil {
		t.Fatalf("failed to read boot log: %v", err)
	}
	if !strings.Contains(string(data), "boot convenience log") {
		t.Error("boot log file missing the convenience-function message")
	}
}

// TestIsCategoryEnabled_DebugModeOffDisablesEverything matches loadConfig's
// default (no config file found) behavior: debug_mode false, no logger
// ever writes.
func TestIsCategoryEnabled_DebugModeOffDisablesEverything(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_off")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Fatal("expected debug mode to default to disabled with no config file present")
	}
	if IsCategoryEnabled(CategoryBoot) {
		t.Error("no category should be enabled when debug mode is off")
	}

	if _, err := os.Stat(filepath.Join(tempDir, ".fleet", "logs")); !os.IsNotExist(err) {
		t.Error("expected no logs directory to be created when debug mode is off")
	}
}

// TestIsCategoryEnabled_PerCategoryFilter exercises the explicit
// categories map overriding the blanket debug_mode-enables-all default.
func TestIsCategoryEnabled_PerCategoryFilter(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_filter")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".fleet")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configContent := `{
		"logging": {
			"level": "info",
			"debug_mode": true,
			"categories": {
				"fleet": true,
				"controller": false
			}
		}
	}`
	if err := os.WriteFile(filepath.Join(configDir, "logging.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if !IsCategoryEnabled(CategoryFleet) {
		t.Error("fleet category was explicitly enabled")
	}
	if IsCategoryEnabled(CategoryController) {
		t.Error("controller category was explicitly disabled")
	}
	if !IsCategoryEnabled(CategoryPlanner) {
		t.Error("a category absent from the map should default to enabled")
	}

	CloseAll()
}

func TestStartTimer_StopDoesNotPanicWithoutDebugMode(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	timer := StartTimer(CategoryPlanner, "plan")
	timer.Stop()
}
