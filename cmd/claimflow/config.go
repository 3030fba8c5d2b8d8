package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all claimflow daemon configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	SessionDir        string `json:"session_dir"`
	TraceDir          string `json:"trace_dir"`
	ActorsConfig      string `json:"actors_config"`
	DatasetsDir       string `json:"datasets_dir"`
	SubmissionDir     string `json:"submission_dir"`
	ActorCommand      string `json:"actor_command"`
	LogLevel          string `json:"log_level"`
	MaxRounds         int    `json:"max_rounds"`
	StallThreshold    int    `json:"stall_threshold"`
	EnableHumanInLoop bool   `json:"enable_human_in_loop"`
	PoolSize          int    `json:"pool_size"`
	SLASchedule       string `json:"sla_schedule"`
	SLADeadlineHours  int    `json:"sla_deadline_hours"`
	ActorTimeoutSecs  int    `json:"actor_timeout_secs"`
}

func defaultConfig() Config {
	dir := claimflowDir()
	return Config{
		DBPath:            filepath.Join(dir, "claimflow.db"),
		SessionDir:        filepath.Join(dir, "sessions"),
		TraceDir:          filepath.Join(dir, "traces"),
		ActorsConfig:      filepath.Join(dir, "actors.yaml"),
		DatasetsDir:       filepath.Join(dir, "datasets"),
		SubmissionDir:     filepath.Join(dir, "submissions"),
		LogLevel:          "info",
		MaxRounds:         15,
		StallThreshold:    3,
		EnableHumanInLoop: true,
		PoolSize:          4,
		SLASchedule:       "0 * * * *",
		SLADeadlineHours:  72,
		ActorTimeoutSecs:  120,
	}
}

func claimflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claimflow"
	}
	return filepath.Join(home, ".claimflow")
}

func settingsPath() string {
	return filepath.Join(claimflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CLAIMFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CLAIMFLOW_SESSION_DIR"); v != "" {
		cfg.SessionDir = v
	}
	if v := os.Getenv("CLAIMFLOW_TRACE_DIR"); v != "" {
		cfg.TraceDir = v
	}
	if v := os.Getenv("CLAIMFLOW_ACTORS_CONFIG"); v != "" {
		cfg.ActorsConfig = v
	}
	if v := os.Getenv("CLAIMFLOW_DATASETS_DIR"); v != "" {
		cfg.DatasetsDir = v
	}
	if v := os.Getenv("CLAIMFLOW_SUBMISSION_DIR"); v != "" {
		cfg.SubmissionDir = v
	}
	if v := os.Getenv("CLAIMFLOW_ACTOR_COMMAND"); v != "" {
		cfg.ActorCommand = v
	}
	if v := os.Getenv("CLAIMFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CLAIMFLOW_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRounds = n
		}
	}
	if v := os.Getenv("CLAIMFLOW_STALL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StallThreshold = n
		}
	}
	if v := os.Getenv("CLAIMFLOW_HUMAN_IN_LOOP"); v != "" {
		cfg.EnableHumanInLoop = v == "true" || v == "1"
	}
	if v := os.Getenv("CLAIMFLOW_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("CLAIMFLOW_SLA_SCHEDULE"); v != "" {
		cfg.SLASchedule = v
	}
	if v := os.Getenv("CLAIMFLOW_SLA_DEADLINE_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SLADeadlineHours = n
		}
	}
	if v := os.Getenv("CLAIMFLOW_ACTOR_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ActorTimeoutSecs = n
		}
	}

	return cfg
}
