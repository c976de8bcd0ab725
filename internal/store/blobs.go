package store

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Blobs stores raw uploaded files in a directory served under a URL prefix.
type Blobs struct {
	dir     string
	baseURL string
}

// NewBlobs creates a blob directory rooted at dir. Files are addressed as
// baseURL + escaped name.
func NewBlobs(dir, baseURL string) *Blobs {
	if baseURL == "" {
		baseURL = "/files/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Blobs{dir: dir, baseURL: baseURL}
}

// Dir returns the directory holding the files.
func (b *Blobs) Dir() string { return b.dir }

// Put writes data under name, replacing any existing file, and returns its
// URL.
func (b *Blobs) Put(name string, data []byte) (string, error) {
	path, err := b.path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return b.URL(name), nil
}

// Get reads the file stored under name.
func (b *Blobs) Get(name string) ([]byte, error) {
	path, err := b.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// URL returns the public URL of name.
func (b *Blobs) URL(name string) string {
	return b.baseURL + url.PathEscape(name)
}

func (b *Blobs) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(b.dir, name), nil
}
