package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/pkg/resilience"
)

// File reads a JSON array of flat entry records.
type File struct {
	path   string
	logger *slog.Logger
}

func NewFile(path string) *File {
	return &File{
		path:   path,
		logger: slog.Default().With("component", "file-source", "path", path),
	}
}

func (f *File) Name() string {
	return "file:" + f.path
}

func (f *File) Load(ctx context.Context) ([]dictionary.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, resilience.Permanent(fmt.Errorf("reading entries: %w", err))
		}
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	var entries []dictionary.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("parsing entries from %s: %w", f.path, err))
	}
	f.logger.Info("entries loaded", "count", len(entries))
	return entries, nil
}
