package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes images into a directory served under <baseURL>/uploads/.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) *Local {
	return &Local{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (l *Local) Put(ctx context.Context, name string, img Image) (string, error) {
	const op = "images.Local.Put"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(filepath.Join(l.dir, filepath.Base(name)), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return l.baseURL + "/uploads/" + filepath.Base(name), nil
}
