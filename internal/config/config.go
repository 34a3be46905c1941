// Package config loads and hot-reloads the fleet control core's YAML
// configuration via a Load/Save/env-override shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FleetConfig covers the Fleet group of the config surface: bot_count,
// bot_start_stagger_ms, reconnect_base_delay_ms, reconnect_jitter_ms.
type FleetConfig struct {
	BotCount             int   `yaml:"bot_count"`
	BotStartStaggerMs    int64 `yaml:"bot_start_stagger_ms"`
	ReconnectBaseDelayMs int64 `yaml:"reconnect_base_delay_ms"`
	ReconnectJitterMs    int64 `yaml:"reconnect_jitter_ms"`
}

// LoopConfig covers tick/refresh periods.
type LoopConfig struct {
	OrchTickMs           int64 `yaml:"orch_tick_ms"`
	SnapshotRefreshMs    int64 `yaml:"snapshot_refresh_ms"`
	SnapshotNearbyCacheMs int64 `yaml:"snapshot_nearby_cache_ms"`
}

// SkillsConfig covers execution/retry timing.
type SkillsConfig struct {
	MaxConcurrentSkills         int   `yaml:"max_concurrent_skills"`
	SubgoalExecTimeoutMs        int64 `yaml:"subgoal_exec_timeout_ms"`
	SubgoalIdleStallMs          int64 `yaml:"subgoal_idle_stall_ms"`
	SubgoalRetryLimit           int   `yaml:"subgoal_retry_limit"`
	SubgoalRetryBaseDelayMs     int64 `yaml:"subgoal_retry_base_delay_ms"`
	SubgoalRetryMaxDelayMs      int64 `yaml:"subgoal_retry_max_delay_ms"`
	SubgoalLoopGuardRepeats     int   `yaml:"subgoal_loop_guard_repeats"`
	SubgoalFailureStreakWindowMs int64 `yaml:"subgoal_failure_streak_window_ms"`
}

// PlannerConfig covers LLM planner timing and rate caps.
type PlannerConfig struct {
	LLMHistoryLimit                     int   `yaml:"llm_history_limit"`
	PlannerTimeoutMs                    int64 `yaml:"planner_timeout_ms"`
	PlannerMaxRetries                   int   `yaml:"planner_max_retries"`
	PlannerCooldownMs                   int64 `yaml:"planner_cooldown_ms"`
	FeasibilityRepromptEnabled          bool  `yaml:"planner_feasibility_reprompt_enabled"`
	FeasibilityRepromptMaxAttempts      int   `yaml:"planner_feasibility_reprompt_max_attempts"`
	LLMPerBotHourlyCap                  int   `yaml:"llm_per_bot_hourly_cap"`
	LLMGlobalHourlyCap                  int   `yaml:"llm_global_hourly_cap"`
	PlanPrefetchEnabled                 bool  `yaml:"plan_prefetch_enabled"`
	PlanPrefetchMinIntervalMs           int64 `yaml:"plan_prefetch_min_interval_ms"`
	PlanPrefetchMaxAgeMs                int64 `yaml:"plan_prefetch_max_age_ms"`
	PlanPrefetchReserveCalls            int   `yaml:"plan_prefetch_reserve_calls"`
}

// CoordinationConfig covers lock/exploration limits.
type CoordinationConfig struct {
	MaxConcurrentExplorers int   `yaml:"max_concurrent_explorers"`
	LockLeaseMs            int64 `yaml:"lock_lease_ms"`
	LockHeartbeatMs        int64 `yaml:"lock_heartbeat_ms"`
}

// BaseConfig is the fleet's home base coordinates.
type BaseConfig struct {
	X      float64 `yaml:"base_x"`
	Y      float64 `yaml:"base_y"`
	Z      float64 `yaml:"base_z"`
	Radius float64 `yaml:"base_radius"`
}

// ReflexConfig covers the Reflex Monitor's two tunable magic numbers:
// NIGHTFALL dedup interval and stall-tick count. They are loaded from the
// config file, but the controller builds its Reflex Monitor from
// reflex.DefaultConfig(), so these values do not reach the monitor.
type ReflexConfig struct {
	NightfallDedupMs int64 `yaml:"reflex_nightfall_dedup_ms"`
	StallTicks       int   `yaml:"reflex_stall_ticks"`
}

// LoggingConfig mirrors internal/logging's on-disk shape. It is read from
// the fleet config file only; internal/logging loads its own settings from
// <workspace>/.fleet/logging.json and is not given these values.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// LLMConfig names the concrete LLM Client adapter's connection settings.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// StoreConfig names the sqlite database path.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// Config is the full fleet control core configuration surface, covering
// fleet/loop/skills/planner/coordination/base/reflex tuning plus the
// ambient logging/store/LLM sections.
type Config struct {
	Fleet        FleetConfig         `yaml:"fleet"`
	Loop         LoopConfig          `yaml:"loop"`
	Skills       SkillsConfig        `yaml:"skills"`
	Planner      PlannerConfig       `yaml:"planner"`
	Coordination CoordinationConfig  `yaml:"coordination"`
	Base         BaseConfig          `yaml:"base"`
	Reflex       ReflexConfig        `yaml:"reflex"`
	Logging      LoggingConfig       `yaml:"logging"`
	LLM          LLMConfig           `yaml:"llm"`
	Store        StoreConfig         `yaml:"store"`
}

// reloadable lists the dotted config keys allowed to change without a fleet
// restart: caps, timeouts, concurrency. bot_count and base coordinates are
// deliberately excluded.
var reloadable = map[string]bool{
	"skills":       true,
	"planner":      true,
	"coordination": true,
	"reflex":       true,
	"logging":      true,
	"loop":         true,
}

// IsReloadableSection reports whether the named top-level section may be
// hot-reloaded.
func IsReloadableSection(section string) bool {
	return reloadable[section]
}

// DefaultConfig returns a Config populated with the control core's literal
// defaults (T_tick=50ms, T_exec_timeout=180s, T_idle_stall=5s,
// loop_guard_repeats=8, streak_window=180s, NIGHTFALL dedup=120000ms,
// stall_ticks=20, etc).
func DefaultConfig() *Config {
	return &Config{
		Fleet: FleetConfig{
			BotCount:             1,
			BotStartStaggerMs:    1500,
			ReconnectBaseDelayMs: 3000,
			ReconnectJitterMs:    1500,
		},
		Loop: LoopConfig{
			OrchTickMs:            50,
			SnapshotRefreshMs:     500,
			SnapshotNearbyCacheMs: 250,
		},
		Skills: SkillsConfig{
			MaxConcurrentSkills:          2,
			SubgoalExecTimeoutMs:         180_000,
			SubgoalIdleStallMs:           5_000,
			SubgoalRetryLimit:            3,
			SubgoalRetryBaseDelayMs:      500,
			SubgoalRetryMaxDelayMs:       15_000,
			SubgoalLoopGuardRepeats:      8,
			SubgoalFailureStreakWindowMs: 180_000,
		},
		Planner: PlannerConfig{
			LLMHistoryLimit:                10,
			PlannerTimeoutMs:               20_000,
			PlannerMaxRetries:              3,
			PlannerCooldownMs:              2_000,
			FeasibilityRepromptEnabled:     true,
			FeasibilityRepromptMaxAttempts: 2,
			LLMPerBotHourlyCap:             60,
			LLMGlobalHourlyCap:             300,
			PlanPrefetchEnabled:            true,
			PlanPrefetchMinIntervalMs:      5_000,
			PlanPrefetchMaxAgeMs:           10_000,
			PlanPrefetchReserveCalls:       1,
		},
		Coordination: CoordinationConfig{
			MaxConcurrentExplorers: 2,
			LockLeaseMs:            15_000,
			LockHeartbeatMs:        5_000,
		},
		Base: BaseConfig{X: 0, Y: 64, Z: 0, Radius: 32},
		Reflex: ReflexConfig{
			NightfallDedupMs: 120_000,
			StallTicks:       20,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
		LLM: LLMConfig{
			Provider: "genai",
			Model:    "gemini-2.0-flash",
		},
		Store: StoreConfig{
			DBPath: ".fleet/fleet.db",
		},
	}
}

// Load reads a YAML config file, falling back to DefaultConfig when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides layers environment variables over YAML/defaults, with
// FLEET_LLM_API_KEY taking priority over the looser GENAI_API_KEY fallback.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FLEET_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	} else if v := os.Getenv("GENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("FLEET_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("FLEET_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("FLEET_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("FLEET_BOT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fleet.BotCount = n
		}
	}
	if v := os.Getenv("FLEET_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Validate checks the config surface's documented ranges (bot_count 1-5,
// max_concurrent_skills 1-5) and returns the first violation found.
func (c *Config) Validate() error {
	if c.Fleet.BotCount < 1 || c.Fleet.BotCount > 5 {
		return fmt.Errorf("fleet.bot_count must be in [1,5], got %d", c.Fleet.BotCount)
	}
	if c.Skills.MaxConcurrentSkills < 1 || c.Skills.MaxConcurrentSkills > 5 {
		return fmt.Errorf("skills.max_concurrent_skills must be in [1,5], got %d", c.Skills.MaxConcurrentSkills)
	}
	if c.Coordination.LockHeartbeatMs >= c.Coordination.LockLeaseMs {
		return fmt.Errorf("coordination.lock_heartbeat_ms must be less than lock_lease_ms")
	}
	return nil
}
