package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/johndauphine/chfile/internal/logging"
)

// Local writes payloads into a directory.
type Local struct {
	Dir         string
	Compression Compression
}

// NewLocal returns a sink writing to dir ("." when empty).
func NewLocal(dir string, c Compression) *Local {
	if dir == "" {
		dir = "."
	}
	return &Local{Dir: dir, Compression: c}
}

// Save writes data to Dir/name, replacing any existing file.
func (l *Local) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := l.Compression.Encode(data)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(l.Dir, filepath.Base(name)+l.Compression.Ext())
	tmp := path + ".part"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming %s: %w", tmp, err)
	}
	logging.Debug("Saved %d bytes to %s", len(payload), path)
	return path, nil
}
