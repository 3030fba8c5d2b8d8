package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rendis/claimflow/internal/expressions"
	"github.com/rendis/claimflow/pkg/schema"
)

// Record is a single dataset row keyed by column name.
type Record map[string]string

// Repository is a lazy, cached loader for the canonical claim datasets:
// CSV tables, JSON documents, and submitted claim documents.
type Repository struct {
	datasetsDir   string
	submissionDir string
	jq            *expressions.GoJQEngine
	logger        *slog.Logger

	mu        sync.RWMutex
	csvCache  map[string][]Record
	jsonCache map[string]any
}

// NewRepository creates a repository rooted at the given directories.
func NewRepository(datasetsDir, submissionDir string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		datasetsDir:   datasetsDir,
		submissionDir: submissionDir,
		jq:            expressions.NewGoJQEngine(),
		logger:        logger,
	}
}

// LoadCSV returns the rows of a CSV dataset, caching after first read.
func (r *Repository) LoadCSV(relativePath string) ([]Record, error) {
	key := filepath.ToSlash(relativePath)

	r.mu.RLock()
	if rows, ok := r.csvCache[key]; ok {
		r.mu.RUnlock()
		return rows, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if rows, ok := r.csvCache[key]; ok {
		return rows, nil
	}

	path := filepath.Join(r.datasetsDir, filepath.FromSlash(relativePath))
	f, err := os.Open(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTool, "dataset not found: %s", path).WithCause(err)
	}
	defer f.Close()

	rows, err := readCSV(f)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTool, "read dataset %s", relativePath).WithCause(err)
	}

	if r.csvCache == nil {
		r.csvCache = make(map[string][]Record)
	}
	r.csvCache[key] = rows
	r.logger.Debug("cached csv dataset", slog.String("path", key), slog.Int("rows", len(rows)))
	return rows, nil
}

// LoadJSON returns a decoded JSON dataset, caching after first read.
func (r *Repository) LoadJSON(relativePath string) (any, error) {
	key := filepath.ToSlash(relativePath)

	r.mu.RLock()
	if doc, ok := r.jsonCache[key]; ok {
		r.mu.RUnlock()
		return doc, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.jsonCache[key]; ok {
		return doc, nil
	}

	path := filepath.Join(r.datasetsDir, filepath.FromSlash(relativePath))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTool, "JSON dataset not found: %s", path).WithCause(err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTool, "decode JSON dataset %s", relativePath).WithCause(err)
	}

	if r.jsonCache == nil {
		r.jsonCache = make(map[string]any)
	}
	r.jsonCache[key] = doc
	r.logger.Debug("cached json dataset", slog.String("path", key))
	return doc, nil
}

// QueryJSON runs a jq query against a JSON dataset and returns all results.
func (r *Repository) QueryJSON(ctx context.Context, relativePath, query string) ([]any, error) {
	doc, err := r.LoadJSON(relativePath)
	if err != nil {
		return nil, err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeTool, "JSON dataset %s is not an object", relativePath)
	}
	return r.jq.EvaluateAll(ctx, query, obj)
}

// LoadSubmission returns the raw contents of a submitted claim document.
func (r *Repository) LoadSubmission(name string) (string, error) {
	path := filepath.Join(r.submissionDir, "documents", filepath.FromSlash(name))
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeTool, "submission document not found: %s", path).WithCause(err)
	}
	return string(raw), nil
}

func readCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(fields) {
				rec[col] = strings.TrimSpace(fields[i])
			}
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// ToMap converts a record to a JSON-friendly map, parsing numeric fields.
func (rec Record) ToMap() map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = coerceField(v)
	}
	return out
}

// Float parses a record field as a float, returning 0 when absent or invalid.
func (rec Record) Float(key string) float64 {
	f, _ := parseFloat(rec[key])
	return f
}

func coerceField(v string) any {
	if v == "" {
		return nil
	}
	if f, ok := parseFloat(v); ok {
		return f
	}
	return v
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
