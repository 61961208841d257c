package checker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Storage keeps photos whose check failed so they can be inspected later
type Storage interface {
	// Save saves a file and returns the path/filename
	Save(filename string, data []byte) (string, error)
}

// IDGenerator generates unique IDs for archived photos
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save saves a file to local storage
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	dashRuns    = regexp.MustCompile(`-+`)
)

// sanitizeName turns an opaque conversation ID into a safe filename part
func sanitizeName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "-")
	name = dashRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	maxLen := 50
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	if name == "" {
		name = "conversation"
	}
	return name
}

// extensionFor picks a file extension from a content type
func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/heic", "image/heif":
		return ".heic"
	case "application/pdf":
		return ".pdf"
	}
	return ".jpg"
}
