package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/claimflow/pkg/schema"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func sampleTranscript() *schema.Transcript {
	tr := schema.NewTranscript()
	tr.Append(schema.Message{Role: schema.RoleUser, Content: "New claim submission"})
	tr.Append(schema.Message{Role: schema.RoleAssistant, Content: "Acknowledged", Name: "intake_coordinator"})
	tr.AppendSystem("Policy POL-100 validated")
	return tr
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cc := schema.NewContext()
	cc[schema.KeyCaseID] = "CLM-1001"
	cc[schema.KeyState] = schema.StateValidationComplete
	cc[schema.KeyMissingDocuments] = []string{"police_report"}
	cc[schema.KeyRiskScore] = 34

	tr := sampleTranscript()

	dir, err := store.Save(ctx, "CLM-1001", tr, cc, map[string]any{MetaStatus: StatusPausedAfterPhase1})
	require.NoError(t, err)
	assert.DirExists(t, dir)

	loaded, err := store.Load(ctx, "CLM-1001")
	require.NoError(t, err)

	assert.Equal(t, "CLM-1001", loaded.Context.CaseID())
	assert.Equal(t, schema.StateValidationComplete, loaded.Context.GetString(schema.KeyState))
	assert.Equal(t, []string{"police_report"}, loaded.Context.MissingDocuments())
	assert.Equal(t, 34, loaded.Context.GetInt(schema.KeyRiskScore))

	require.Equal(t, tr.Len(), loaded.Transcript.Len())
	for i, msg := range tr.Messages() {
		got := loaded.Transcript.Messages()[i]
		assert.Equal(t, msg.Role, got.Role)
		assert.Equal(t, msg.Content, got.Content)
	}

	assert.Equal(t, StatusPausedAfterPhase1, loaded.Metadata[MetaStatus])
	assert.Equal(t, float64(3), loaded.Metadata[MetaMessageCount])
}

func TestSaveCoercesNonSerializableValues(t *testing.T) {
	store := newTestStore(t)
	cc := schema.NewContext()
	cc[schema.KeyCaseID] = "CLM-2"
	cc["callback"] = func() {} // not JSON-serializable

	_, err := store.Save(context.Background(), "CLM-2", schema.NewTranscript(), cc, nil)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), "CLM-2")
	require.NoError(t, err)
	_, isString := loaded.Context["callback"].(string)
	assert.True(t, isString)
}

func TestSaveFullyOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cc := schema.NewContext()
	cc[schema.KeyCaseID] = "CLM-3"
	cc["first_only"] = true
	tr := sampleTranscript()
	_, err := store.Save(ctx, "CLM-3", tr, cc, nil)
	require.NoError(t, err)

	cc2 := schema.NewContext()
	cc2[schema.KeyCaseID] = "CLM-3"
	_, err = store.Save(ctx, "CLM-3", schema.NewTranscript(), cc2, nil)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "CLM-3")
	require.NoError(t, err)
	assert.NotContains(t, loaded.Context, "first_only")
	assert.Zero(t, loaded.Transcript.Len())
}

func TestHistoryIsOneMessagePerLine(t *testing.T) {
	store := newTestStore(t)
	tr := sampleTranscript()
	cc := schema.NewContext()
	cc[schema.KeyCaseID] = "CLM-4"

	dir, err := store.Save(context.Background(), "CLM-4", tr, cc, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, tr.Len())
	for _, line := range lines {
		var msg map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		assert.Contains(t, msg, "role")
		assert.Contains(t, msg, "content")
	}
}

func TestLoadNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), "CLM-404")
	require.Error(t, err)
	assert.True(t, schema.IsNotFound(err))
}

func TestLoadMissingMetadataIsNotFound(t *testing.T) {
	store := newTestStore(t)

	// A case directory without session.json is not a session.
	dir := filepath.Join(store.BaseDir(), "CLM-5")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "context.json"), []byte(`{}`), 0o644))

	_, err := store.Load(context.Background(), "CLM-5")
	require.Error(t, err)
	assert.True(t, schema.IsNotFound(err))
	assert.False(t, store.Exists("CLM-5"))
}

func TestListSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"CLM-9", "CLM-1", "CLM-5"} {
		cc := schema.NewContext()
		cc[schema.KeyCaseID] = id
		_, err := store.Save(ctx, id, schema.NewTranscript(), cc, nil)
		require.NoError(t, err)
	}

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"CLM-1", "CLM-5", "CLM-9"}, ids)
}

func TestArchiveIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cc := schema.NewContext()
	cc[schema.KeyCaseID] = "CLM-6"
	_, err := store.Save(ctx, "CLM-6", sampleTranscript(), cc, map[string]any{MetaStatus: StatusCompleted})
	require.NoError(t, err)

	require.NoError(t, store.Archive(ctx, "CLM-6"))
	require.NoError(t, store.Archive(ctx, "CLM-6"))

	raw, err := os.ReadFile(filepath.Join(store.BaseDir(), "CLM-6", "session.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), `"archived_at"`))

	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.NotEmpty(t, meta[MetaArchivedAt])
	// Transcript and context survive archival untouched.
	loaded, err := store.Load(ctx, "CLM-6")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Transcript.Len())
}

func TestArchiveMissingSession(t *testing.T) {
	store := newTestStore(t)
	err := store.Archive(context.Background(), "CLM-404")
	require.Error(t, err)
	assert.True(t, schema.IsNotFound(err))
}

func TestGuardSerializesPerCase(t *testing.T) {
	guard := NewGuard()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := guard.Acquire("CLM-7")
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestGuardIndependentCases(t *testing.T) {
	guard := NewGuard()
	releaseA := guard.Acquire("CLM-A")
	// A held lock on one case must not block another case.
	releaseB := guard.Acquire("CLM-B")
	releaseB()
	releaseA()
}
