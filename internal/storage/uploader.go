package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Uploader moves a local temporary file into durable storage and returns a
// URL for it. The caller is responsible for removing the temporary file on
// both outcomes.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// DiskUploader stores files under a publicly served directory. It stands in
// for an external object store; the interface keeps it swappable.
type DiskUploader struct {
	dir     string
	baseURL string
}

func NewDiskUploader(dir, baseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskUploader{dir: dir, baseURL: baseURL}, nil
}

func (u *DiskUploader) Upload(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + filepath.Ext(localPath)
	dst, err := os.Create(filepath.Join(u.dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload target: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copy upload: %w", err)
	}
	return u.baseURL + "/" + name, nil
}
