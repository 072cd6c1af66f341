package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telos-ai/telos/pkg/errors"
)

// FileStore persists documents as YAML files under a root directory, one
// file per document plus a history/ directory holding every superseded
// revision. Writes go through a temp file and rename so readers never see a
// partial document.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore opens (creating if needed) a file-backed knowledge base.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "history"), 0o755); err != nil {
		return nil, fmt.Errorf("knowledge dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Read implements Store.
func (s *FileStore) Read(_ context.Context, name string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(name)
}

// Write implements Store.
func (s *FileStore) Write(_ context.Context, name, content string, expectedVersion int) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked(name)
	actual := 0
	switch {
	case err == nil:
		actual = existing.Version
	case errors.HasCode(err, errors.CodeNotFound):
		// first write
	default:
		return Document{}, err
	}
	if actual != expectedVersion {
		return Document{}, conflict(name, expectedVersion, actual)
	}

	if actual > 0 {
		if err := s.archiveLocked(existing); err != nil {
			return Document{}, err
		}
	}

	doc := Document{
		Name:      name,
		Version:   expectedVersion + 1,
		Content:   content,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.writeFileLocked(s.docPath(name), doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Names implements Store.
func (s *FileStore) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list knowledge dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) readLocked(name string) (Document, error) {
	data, err := os.ReadFile(s.docPath(name))
	if os.IsNotExist(err) {
		return Document{}, notFound(name)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read knowledge document: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode knowledge document %s: %w", name, err)
	}
	return doc, nil
}

func (s *FileStore) archiveLocked(doc Document) error {
	path := filepath.Join(s.root, "history", fmt.Sprintf("%s.v%d.yaml", safeName(doc.Name), doc.Version))
	return s.writeFileLocked(path, doc)
}

func (s *FileStore) writeFileLocked(path string, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode knowledge document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write knowledge document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit knowledge document: %w", err)
	}
	return nil
}

func (s *FileStore) docPath(name string) string {
	return filepath.Join(s.root, safeName(name)+".yaml")
}

// safeName keeps document names inside the store directory.
func safeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(name)
}

var _ Store = (*FileStore)(nil)
