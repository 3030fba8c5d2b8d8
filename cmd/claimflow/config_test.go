package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/claimflow/internal/actors"
	"github.com/rendis/claimflow/pkg/schema"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 15, cfg.MaxRounds)
	assert.Equal(t, 3, cfg.StallThreshold)
	assert.True(t, cfg.EnableHumanInLoop)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0 * * * *", cfg.SLASchedule)
	assert.Equal(t, 72, cfg.SLADeadlineHours)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.SessionDir)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CLAIMFLOW_DB_PATH", "/tmp/claims.db")
	t.Setenv("CLAIMFLOW_MAX_ROUNDS", "5")
	t.Setenv("CLAIMFLOW_HUMAN_IN_LOOP", "false")
	t.Setenv("CLAIMFLOW_POOL_SIZE", "2")
	t.Setenv("CLAIMFLOW_ACTOR_COMMAND", "bin/actor-bridge --profile default")
	t.Setenv("CLAIMFLOW_LOG_LEVEL", "debug")

	cfg := loadConfig()

	assert.Equal(t, "/tmp/claims.db", cfg.DBPath)
	assert.Equal(t, 5, cfg.MaxRounds)
	assert.False(t, cfg.EnableHumanInLoop)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, "bin/actor-bridge --profile default", cfg.ActorCommand)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigIgnoresInvalidNumericEnv(t *testing.T) {
	t.Setenv("CLAIMFLOW_MAX_ROUNDS", "not-a-number")

	cfg := loadConfig()

	assert.Equal(t, 15, cfg.MaxRounds)
}

func TestSubprocessInvokerRequiresCommand(t *testing.T) {
	inv := NewSubprocessInvoker("", nil)

	def := actors.Definition{Role: actors.RoleFraudAnalyst, Instructions: "Screen for fraud indicators."}
	_, err := inv.Invoke(context.Background(), def, schema.NewContext(), schema.NewTranscript())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no actor backend configured")
}
