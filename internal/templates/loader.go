package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Constants for template file handling
const (
	// DefaultDirPermissions defines the permissions for a created templates directory
	DefaultDirPermissions = 0755
	// DefaultFilePermissions defines the permissions for written template files
	DefaultFilePermissions = 0644
)

// ErrUnsupportedFormat is returned for files that are not JSON or YAML definitions.
var ErrUnsupportedFormat = errors.New("unsupported template file format")

// Loader reads and writes template definitions under a base directory.
// Files are keyed by their base name: "review.yaml" defines template "review".
type Loader struct {
	fs      afero.Fs
	baseDir string
}

// NewLoader creates a Loader over the given filesystem.
// Use afero.NewMemMapFs() in tests.
func NewLoader(fs afero.Fs, baseDir string) *Loader {
	return &Loader{fs: fs, baseDir: baseDir}
}

// NewOsLoader creates a Loader over the operating system filesystem.
func NewOsLoader(baseDir string) *Loader {
	return NewLoader(afero.NewOsFs(), baseDir)
}

// Dir returns the base directory.
func (l *Loader) Dir() string {
	return l.baseDir
}

// IsTemplateFile reports whether path has a recognised definition extension.
func IsTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadAll loads every valid definition directly inside the base directory in lexical
// order. Subdirectories are not read.
// Unreadable or invalid files are logged and skipped. A missing directory yields no templates.
func (l *Loader) LoadAll() ([]models.Template, error) {
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check templates directory: %w", err)
	}
	if !exists {
		slog.Debug("Loader.LoadAll: templates directory absent", "dir", l.baseDir)
		return nil, nil
	}

	entries, err := afero.ReadDir(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read templates directory: %w", err)
	}
	var loaded []models.Template
	for _, entry := range entries {
		path := filepath.Join(l.baseDir, entry.Name())
		if entry.IsDir() || !IsTemplateFile(path) {
			continue
		}
		t, err := l.LoadFile(path)
		if err != nil {
			slog.Warn("Loader.LoadAll: skipping template file", "path", path, "error", err)
			continue
		}
		loaded = append(loaded, t)
	}
	slog.Debug("Loader.LoadAll: templates loaded", "dir", l.baseDir, "count", len(loaded))
	return loaded, nil
}

// LoadFile reads and validates a single definition file.
func (l *Loader) LoadFile(path string) (models.Template, error) {
	var t models.Template

	file, err := l.fs.Open(path)
	if err != nil {
		return t, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return t, fmt.Errorf("read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(content, &t)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &t)
	default:
		return t, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return t, fmt.Errorf("decode %s: %w", path, err)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if t.ID != "" && t.ID != id {
		slog.Warn("Loader.LoadFile: file name overrides template id", "path", path, "declaredID", t.ID, "id", id)
	}
	t.ID = id

	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// LoadInto registers every loaded definition whose id is not already in s and
// returns how many were inserted.
func (l *Loader) LoadInto(s *Store) (int, error) {
	loaded, err := l.LoadAll()
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, t := range loaded {
		if s.Register(t) {
			inserted++
		}
	}
	slog.Info("Loader.LoadInto: custom templates registered", "dir", l.baseDir, "inserted", inserted, "total", s.Len())
	return inserted, nil
}

// SeedDefaults writes each built-in template as JSON unless a definition with its id exists.
func (l *Loader) SeedDefaults() error {
	for _, t := range DefaultTemplates() {
		present, err := l.has(t.ID)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		if err := l.Save(t); err != nil {
			return err
		}
		slog.Debug("Loader.SeedDefaults: wrote built-in template", "templateID", t.ID)
	}
	return nil
}

// Save writes t to <baseDir>/<id>.json, creating the directory if needed.
func (l *Loader) Save(t models.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(l.baseDir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("create templates directory: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode template %s: %w", t.ID, err)
	}
	path, err := l.pathFor(t.ID, ".json")
	if err != nil {
		return err
	}
	if err := afero.WriteFile(l.fs, path, data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write template %s: %w", path, err)
	}
	return nil
}

// pathFor returns the definition path for id, refusing anything outside the base directory.
func (l *Loader) pathFor(id, ext string) (string, error) {
	if !models.ValidTemplateID(id) {
		return "", fmt.Errorf("%w: unusable template id %q", models.ErrInvalidTemplate, id)
	}
	base := filepath.Clean(l.baseDir)
	path := filepath.Join(base, id+ext)
	if filepath.Dir(path) != base {
		return "", fmt.Errorf("%w: template id %q escapes %s", models.ErrInvalidTemplate, id, base)
	}
	return path, nil
}

func (l *Loader) has(id string) (bool, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		ok, err := afero.Exists(l.fs, filepath.Join(l.baseDir, id+ext))
		if err != nil {
			return false, fmt.Errorf("stat template %s: %w", id, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
