package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// PathSource reads an upload from the local filesystem.
type PathSource struct {
	Path string
}

func (s PathSource) Open(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	return data, nil
}

// Name is the base name of the file.
func (s PathSource) Name() string {
	return filepath.Base(s.Path)
}
