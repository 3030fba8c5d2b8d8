package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CaseID(ctx))
	assert.Empty(t, Phase(ctx))
	assert.Empty(t, ActorID(ctx))

	ctx = WithCaseID(ctx, "CLM-1001")
	ctx = WithPhase(ctx, "phase2")
	ctx = WithActorID(ctx, "fraud_analyst")

	assert.Equal(t, "CLM-1001", CaseID(ctx))
	assert.Equal(t, "phase2", Phase(ctx))
	assert.Equal(t, "fraud_analyst", ActorID(ctx))
}

func TestLogWithAddsOnlyPresentIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithCaseID(context.Background(), "CLM-1001")
	LogWith(ctx, logger).Info("saved")

	out := buf.String()
	assert.Contains(t, out, "case_id=CLM-1001")
	assert.NotContains(t, out, "phase=")
	assert.NotContains(t, out, "actor_id=")
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithActorID(WithCaseID(context.Background(), "CLM-7"), "claims_officer")
	logger.InfoContext(ctx, "actor response appended")

	out := buf.String()
	assert.Contains(t, out, "case_id=CLM-7")
	assert.Contains(t, out, "actor_id=claims_officer")
}
