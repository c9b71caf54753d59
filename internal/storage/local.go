package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PublicPrefix is the URL path the HTTP server serves local uploads under.
const PublicPrefix = "/uploads/"

// Local writes uploads to a directory on disk.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Root() string {
	return l.root
}

func (l *Local) Save(ctx context.Context, upload Upload) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	key := ObjectKey(upload.FileName)
	target := filepath.Join(l.root, key)

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(file, upload.Reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return Stored{}, fmt.Errorf("write upload file: %w", err)
	}

	return Stored{
		FilePath: PublicPrefix + key,
		FileName: upload.FileName,
		FileType: contentType(upload),
		FileSize: written,
	}, nil
}

// Remove deletes a file previously returned by Save. Missing files are not
// an error.
func (l *Local) Remove(_ context.Context, filePath string) error {
	key := strings.TrimPrefix(filePath, PublicPrefix)
	if key == "" || key == filePath || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("not a local upload path: %q", filePath)
	}
	if err := os.Remove(filepath.Join(l.root, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}
