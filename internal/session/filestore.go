package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rendis/claimflow/internal/logging"
	"github.com/rendis/claimflow/pkg/schema"
)

// Per-case on-disk layout:
//
//	<base>/<case_id>/context.json   — context snapshot
//	<base>/<case_id>/history.jsonl  — one message per line, transcript order
//	<base>/<case_id>/session.json   — metadata (status, saved_at, ...)
const (
	contextFile = "context.json"
	historyFile = "history.jsonl"
	sessionFile = "session.json"
)

// FileStore implements Store on the local filesystem. Each artifact is
// written to a temp file and renamed into place, so a crashed save never
// leaves a torn file behind (last writer wins).
type FileStore struct {
	baseDir string
	logger  *slog.Logger
}

// NewFileStore creates the base directory if needed and returns a FileStore.
func NewFileStore(baseDir string, logger *slog.Logger) (*FileStore, error) {
	if baseDir == "" {
		baseDir = "sessions"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSession, "create session dir: %s", err.Error()).WithCause(err)
	}
	return &FileStore{baseDir: baseDir, logger: logger}, nil
}

// BaseDir returns the root directory sessions are stored under.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// Save persists context, transcript, and metadata for the case, fully
// overwriting any previous snapshot.
func (s *FileStore) Save(ctx context.Context, caseID string, transcript *schema.Transcript, cc schema.Context, metadata map[string]any) (string, error) {
	if caseID == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "case ID is empty")
	}

	dir := filepath.Join(s.baseDir, caseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "create case dir: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	contextJSON, err := json.MarshalIndent(coerceContext(cc), "", "  ")
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "marshal context: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}
	if err := writeAtomic(filepath.Join(dir, contextFile), contextJSON); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "write context: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	history, err := encodeHistory(transcript)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "encode history: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}
	if err := writeAtomic(filepath.Join(dir, historyFile), history); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "write history: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	meta := map[string]any{
		MetaCaseID:           caseID,
		MetaSavedAt:          time.Now().UTC().Format(time.RFC3339),
		MetaMessageCount:     transcript.Len(),
		MetaStatus:           cc.GetString(schema.KeyState),
		MetaMissingDocuments: cc.MissingDocuments(),
	}
	for k, v := range metadata {
		meta[k] = v
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "marshal metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}
	if err := writeAtomic(filepath.Join(dir, sessionFile), metaJSON); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeSession, "write metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	logging.LogWith(ctx, s.logger).Info("session saved",
		slog.String("case_id", caseID),
		slog.Int("messages", transcript.Len()),
		slog.Any("status", meta[MetaStatus]),
	)
	return dir, nil
}

// Load restores the persisted session. A directory without session.json is
// treated as "session not found", not as a partially-available session.
func (s *FileStore) Load(ctx context.Context, caseID string) (*Session, error) {
	dir := filepath.Join(s.baseDir, caseID)

	metaJSON, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no session found").WithCase(caseID)
		}
		return nil, schema.NewErrorf(schema.ErrCodeSession, "read metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}
	var meta map[string]any
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSession, "decode metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	cc := schema.Context{}
	if contextJSON, err := os.ReadFile(filepath.Join(dir, contextFile)); err == nil {
		if err := json.Unmarshal(contextJSON, &cc); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeSession, "decode context: %s", err.Error()).
				WithCase(caseID).WithCause(err)
		}
	}

	transcript, err := s.loadHistory(filepath.Join(dir, historyFile))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSession, "load history: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	logging.LogWith(ctx, s.logger).Info("session loaded",
		slog.String("case_id", caseID),
		slog.Int("messages", transcript.Len()),
	)
	return &Session{Transcript: transcript, Context: cc, Metadata: meta}, nil
}

// Exists reports whether the case directory and its metadata file exist.
func (s *FileStore) Exists(caseID string) bool {
	_, err := os.Stat(filepath.Join(s.baseDir, caseID, sessionFile))
	return err == nil
}

// List returns all case IDs with a loadable session, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeSession, "list sessions: %s", err.Error()).WithCause(err)
	}

	var cases []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if s.Exists(entry.Name()) {
			cases = append(cases, entry.Name())
		}
	}
	sort.Strings(cases)
	return cases, nil
}

// Archive stamps archived_at into session.json, leaving transcript and
// context untouched. Repeated calls overwrite the timestamp; the key never
// duplicates.
func (s *FileStore) Archive(ctx context.Context, caseID string) error {
	path := filepath.Join(s.baseDir, caseID, sessionFile)
	metaJSON, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return schema.NewErrorf(schema.ErrCodeNotFound, "no session found").WithCase(caseID)
		}
		return schema.NewErrorf(schema.ErrCodeSession, "read metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	var meta map[string]any
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return schema.NewErrorf(schema.ErrCodeSession, "decode metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}
	meta[MetaArchivedAt] = time.Now().UTC().Format(time.RFC3339)

	updated, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeSession, "marshal metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}
	if err := writeAtomic(path, updated); err != nil {
		return schema.NewErrorf(schema.ErrCodeSession, "write metadata: %s", err.Error()).
			WithCase(caseID).WithCause(err)
	}

	logging.LogWith(ctx, s.logger).Info("session archived", slog.String("case_id", caseID))
	return nil
}

func (s *FileStore) loadHistory(path string) (*schema.Transcript, error) {
	transcript := schema.NewTranscript()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return transcript, nil
		}
		return nil, err
	}
	defer f.Close()

	// One JSON object per line so a reader can stream without parsing the
	// whole transcript at once.
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw struct {
			Role     string         `json:"role"`
			Content  string         `json:"content"`
			Name     string         `json:"name"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("decode message line: %w", err)
		}
		transcript.Append(schema.Message{
			Role:     schema.ParseRole(raw.Role),
			Content:  raw.Content,
			Name:     raw.Name,
			Metadata: raw.Metadata,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return transcript, nil
}

func encodeHistory(transcript *schema.Transcript) ([]byte, error) {
	var buf []byte
	for _, msg := range transcript.Messages() {
		line, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// coerceContext returns a copy of the context with any value that does not
// serialize to JSON replaced by its string form.
func coerceContext(cc schema.Context) map[string]any {
	out := make(map[string]any, len(cc))
	for k, v := range cc {
		if _, err := json.Marshal(v); err != nil {
			out[k] = fmt.Sprintf("%v", v)
			continue
		}
		out[k] = v
	}
	return out
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
