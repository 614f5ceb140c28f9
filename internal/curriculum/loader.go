// Package curriculum holds the subject catalog and infers a document's
// subject, unit and topic from its text and filename.
package curriculum

import (
	_ "embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed subjects.yaml
var defaultCatalog []byte

// Loader holds the subject catalog: the embedded defaults, optionally
// extended or overridden by YAML files in a directory.
type Loader struct {
	rootDir  string
	subjects []Subject
	index    map[string]int // lower-cased name -> position in subjects
	mu       sync.RWMutex
}

// NewLoader loads the embedded catalog and then every .yaml/.yml file under
// rootDir, in path order. A subject whose name is already known replaces
// the earlier definition in place; new subjects are appended. An empty
// rootDir loads only the defaults.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		index:   make(map[string]int),
	}

	if err := l.loadCatalog("embedded", defaultCatalog); err != nil {
		return nil, fmt.Errorf("loading default catalog: %w", err)
	}
	if rootDir != "" {
		if err := l.loadDir(); err != nil {
			return nil, fmt.Errorf("loading curriculum: %w", err)
		}
	}

	slog.Info("curriculum loaded", "subjects", len(l.subjects), "dir", rootDir)
	return l, nil
}

// Subjects returns the catalog in precedence order.
func (l *Loader) Subjects() []Subject {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Subject, len(l.subjects))
	copy(out, l.subjects)
	return out
}

// GetSubject returns a subject by name, case-insensitively.
func (l *Loader) GetSubject(name string) (Subject, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Subject{}, false
	}
	return l.subjects[i], true
}

func (l *Loader) loadDir() error {
	var paths []string
	err := filepath.WalkDir(l.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := l.loadCatalog(path, data); err != nil {
			slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		}
	}
	return nil
}

func (l *Loader) loadCatalog(source string, data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range file.Subjects {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			slog.Warn("skipping unnamed subject", "source", source)
			continue
		}
		for i, kw := range s.Keywords {
			s.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
		}

		key := strings.ToLower(s.Name)
		if i, ok := l.index[key]; ok {
			l.subjects[i] = s
			continue
		}
		l.index[key] = len(l.subjects)
		l.subjects = append(l.subjects, s)
	}
	return nil
}
