package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/rendis/claimflow/internal/actors"
	"github.com/rendis/claimflow/pkg/schema"
)

// bridgeRequest is what the configured actor command receives on stdin.
type bridgeRequest struct {
	Role         string           `json:"role"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Context      schema.Context   `json:"context"`
	Transcript   []schema.Message `json:"transcript"`
}

// bridgeResponse is the actor command's stdout. ContextUpdates are merged
// into the case context; an empty content with no updates means the actor
// chose to stay silent this round.
type bridgeResponse struct {
	Content        string         `json:"content"`
	ContextUpdates map[string]any `json:"context_updates,omitempty"`
}

// SubprocessInvoker runs each actor turn as an external command, passing
// the actor definition, case context, and transcript as JSON on stdin and
// reading a single JSON response from stdout. The command is invoked with
// the actor role appended as its final argument.
type SubprocessInvoker struct {
	command []string
	logger  *slog.Logger
}

// NewSubprocessInvoker builds an invoker from a shell-style command line.
// An empty command yields an invoker that fails every invocation, so a
// misconfigured daemon surfaces the problem per case instead of crashing.
func NewSubprocessInvoker(command string, logger *slog.Logger) *SubprocessInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessInvoker{command: strings.Fields(command), logger: logger}
}

// Invoke implements actors.Invoker.
func (s *SubprocessInvoker) Invoke(ctx context.Context, def actors.Definition, cc schema.Context, transcript *schema.Transcript) (*schema.Message, error) {
	if len(s.command) == 0 {
		return nil, schema.NewError(schema.ErrCodeActor,
			"no actor backend configured: set actor_command in settings.json or CLAIMFLOW_ACTOR_COMMAND")
	}

	req := bridgeRequest{
		Role:         def.Role,
		Name:         def.Name,
		Instructions: def.Instructions,
		Context:      cc,
		Transcript:   transcript.Messages(),
	}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeActor, "encoding request for actor %s", def.Role).WithCause(err)
	}

	args := append(append([]string(nil), s.command[1:]...), def.Role)
	cmd := exec.CommandContext(ctx, s.command[0], args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("actor command failed",
			"role", def.Role, "error", err, "stderr", strings.TrimSpace(stderr.String()))
		return nil, schema.NewErrorf(schema.ErrCodeActor, "actor command for %s failed", def.Role).WithCause(err)
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeActor, "invalid response from actor %s", def.Role).WithCause(err)
	}

	if len(resp.ContextUpdates) > 0 {
		cc.Merge(schema.Context(resp.ContextUpdates))
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, nil
	}
	return &schema.Message{
		Role:    schema.RoleAssistant,
		Content: resp.Content,
		Name:    def.Role,
	}, nil
}
