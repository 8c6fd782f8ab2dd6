// Package docs renders the node's AsciiDoc manuals to HTML on demand.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bytesparadise/libasciidoc"
	"github.com/bytesparadise/libasciidoc/pkg/configuration"
)

const docExt = ".adoc"

var (
	// ErrInvalidName rejects names that are not a bare .adoc file name.
	ErrInvalidName = errors.New("invalid document name")
	// ErrNotFound is returned for documents missing from the docs directory.
	ErrNotFound = errors.New("document not found")
)

// Service renders documents from docsDir and caches the HTML until the
// source file changes.
type Service struct {
	docsDir string
	cache   map[string]rendered
	mu      sync.RWMutex
}

type rendered struct {
	modTime int64
	html    string
}

func NewService(docsDir string) *Service {
	return &Service{
		docsDir: docsDir,
		cache:   make(map[string]rendered),
	}
}

// Normalize turns "kvstore" or "kvstore.adoc" into the document's file name.
func Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, docExt) {
		name += docExt
	}
	if name == docExt || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// GetDoc returns the HTML body of the named document.
func (s *Service) GetDoc(ctx context.Context, name string) (string, error) {
	filename, err := Normalize(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.docsDir, filename)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat doc file: %w", err)
	}

	s.mu.RLock()
	cached, ok := s.cache[filename]
	s.mu.RUnlock()
	if ok && cached.modTime == info.ModTime().UnixNano() {
		return cached.html, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read doc file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	output := bytes.NewBuffer(nil)
	config := configuration.NewConfiguration(
		configuration.WithHeaderFooter(false),
		configuration.WithAttribute("toc", "left"),
	)
	if _, err := libasciidoc.Convert(bytes.NewReader(data), output, config); err != nil {
		return "", fmt.Errorf("failed to convert asciidoc: %w", err)
	}

	html := output.String()
	s.mu.Lock()
	s.cache[filename] = rendered{modTime: info.ModTime().UnixNano(), html: html}
	s.mu.Unlock()

	return html, nil
}

// ListDocs returns the sorted .adoc file names in the docs directory.
func (s *Service) ListDocs() ([]string, error) {
	entries, err := os.ReadDir(s.docsDir)
	if err != nil {
		return nil, err
	}

	docs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), docExt) {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}
