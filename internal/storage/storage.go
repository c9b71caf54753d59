// Package storage persists uploaded archive files and profile photos.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Upload is an incoming file.
type Upload struct {
	Reader      io.Reader
	Size        int64
	FileName    string
	ContentType string
}

// Stored describes where an upload ended up. FilePath is what gets persisted
// on the archive row and handed back to clients.
type Stored struct {
	FilePath string
	FileName string
	FileType string
	FileSize int64
}

type Storage interface {
	Save(ctx context.Context, upload Upload) (Stored, error)
	Remove(ctx context.Context, filePath string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds a collision-free key that keeps a readable file name.
func ObjectKey(fileName string) string {
	return uuid.NewString() + "-" + SanitizeFileName(fileName)
}

// SanitizeFileName strips directories and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	return base
}

func contentType(upload Upload) string {
	if upload.ContentType != "" {
		return upload.ContentType
	}
	return "application/octet-stream"
}
