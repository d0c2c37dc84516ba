package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/go-core/log"
)

// Source supplies knowledge base entries. Implementations are read once at
// startup; the result is frozen into an Index.
type Source interface {
	Load(ctx context.Context) ([]Entry, error)
}

// FileSource reads entries from a JSON, YAML or XLSX file chosen by extension.
type FileSource struct {
	Path   string
	Logger log.Logger
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string, logger log.Logger) *FileSource {
	if logger == nil {
		logger = log.Nop()
	}
	return &FileSource{Path: path, Logger: logger}
}

// Load reads and decodes the file. Entries with wrongly typed fields are kept
// with whatever could be decoded; only unreadable or syntactically invalid
// files are an error.
func (s *FileSource) Load(ctx context.Context) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "kb.load_file")
	defer span.End()

	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".xlsx":
		return loadXLSX(s.Path)
	case ".yaml", ".yml":
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("read kb file: %w", err)
		}
		return decodeYAML(ctx, data, s.Logger)
	default:
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("read kb file: %w", err)
		}
		return decodeJSON(ctx, data, s.Logger)
	}
}

func decodeJSON(ctx context.Context, data []byte, logger log.Logger) ([]Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	err := json.Unmarshal(data, &entries)

	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
	case errors.As(err, &typeErr):
		logger.Warn(ctx, "kb file has malformed fields, keeping partial entries",
			"field", typeErr.Field,
			"error", err,
		)
	default:
		return nil, fmt.Errorf("decode kb json: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func decodeYAML(ctx context.Context, data []byte, logger log.Logger) ([]Entry, error) {
	var entries []Entry
	err := yaml.Unmarshal(data, &entries)

	var typeErr *yaml.TypeError
	switch {
	case err == nil:
	case errors.As(err, &typeErr):
		logger.Warn(ctx, "kb file has malformed fields, keeping partial entries",
			"errors", len(typeErr.Errors),
			"error", err,
		)
	default:
		return nil, fmt.Errorf("decode kb yaml: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
