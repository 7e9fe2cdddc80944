// Package library locates and lays out the on-disk library: the root
// directory the managed tree lives under, and the .libr/ metadata directory
// that holds the index database, document cards, action log, and config.
//
// Layout:
//
//	MyLibrary/
//	├── .libr/              <- MetaDir()
//	│   ├── library.toml    <- ManifestPath()
//	│   ├── config.toml     <- ConfigPath()
//	│   ├── actions.jsonl   <- ActionLogPath()
//	│   ├── cards/          <- CardsDir()
//	│   └── db/libr.db      <- DatabasePath()
//	└── ... managed folders and documents ...
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// MetaDirName is the well-known metadata directory, analogous to .git/.
const MetaDirName = ".libr"

// SchemaVersion is bumped when the .libr/ layout changes incompatibly.
const SchemaVersion = 1

// Root points at a directory containing a .libr/ metadata directory.
type Root struct {
	path string
}

// NewRoot wraps an absolute path without validating that .libr/ exists.
func NewRoot(path string) *Root {
	return &Root{path: filepath.Clean(path)}
}

// Path returns the library root directory (where the managed tree lives).
func (r *Root) Path() string { return r.path }

// MetaDir returns the .libr/ metadata directory.
func (r *Root) MetaDir() string { return filepath.Join(r.path, MetaDirName) }

// ManifestPath returns the path of library.toml.
func (r *Root) ManifestPath() string { return filepath.Join(r.MetaDir(), "library.toml") }

// ConfigPath returns the path of config.toml.
func (r *Root) ConfigPath() string { return filepath.Join(r.MetaDir(), "config.toml") }

// DatabasePath returns the path of the relational index database.
func (r *Root) DatabasePath() string { return filepath.Join(r.MetaDir(), "db", "libr.db") }

// CardsDir returns the directory holding per-document JSON cards.
func (r *Root) CardsDir() string { return filepath.Join(r.MetaDir(), "cards") }

// ActionLogPath returns the path of the append-only action log.
func (r *Root) ActionLogPath() string { return filepath.Join(r.MetaDir(), "actions.jsonl") }

// Abs resolves a slash-separated library-relative path to an absolute one.
func (r *Root) Abs(rel string) string {
	if rel == "" {
		return r.path
	}
	return filepath.Join(r.path, filepath.FromSlash(rel))
}

// Rel converts an absolute path inside the library to a slash-separated
// library-relative path. Returns an error for paths outside the root.
func (r *Root) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.path, abs)
	if err != nil {
		return "", fmt.Errorf("path %s is not under library root %s: %w", abs, r.path, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is not under library root %s", abs, r.path)
	}
	return rel, nil
}

// Discover walks up the directory tree from start looking for a directory
// containing .libr/library.toml. Returns nil if no library is found.
func Discover(start string) *Root {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil
	}
	for {
		manifest := filepath.Join(dir, MetaDirName, "library.toml")
		if info, err := os.Stat(manifest); err == nil && !info.IsDir() {
			return NewRoot(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// Manifest is the identity document written to .libr/library.toml.
type Manifest struct {
	Name          string
	ID            string
	SchemaVersion int
	CreatedAt     time.Time
}

// Init creates the .libr/ structure under path and writes the manifest.
// Fails if the directory already holds a library.
func Init(path, name string) (*Root, error) {
	root := NewRoot(path)
	if _, err := os.Stat(root.ManifestPath()); err == nil {
		return nil, fmt.Errorf("library already exists at %s", path)
	}

	for _, dir := range []string{root.MetaDir(), root.CardsDir(), filepath.Dir(root.DatabasePath())} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	v := viper.New()
	v.Set("library.name", name)
	v.Set("library.id", uuid.Must(uuid.NewV7()).String())
	v.Set("library.schema_version", SchemaVersion)
	v.Set("library.created_at", time.Now().UTC().Format(time.RFC3339))
	if err := v.WriteConfigAs(root.ManifestPath()); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	return root, nil
}

// ReadManifest loads library.toml for this root.
func (r *Root) ReadManifest() (*Manifest, error) {
	v := viper.New()
	v.SetConfigFile(r.ManifestPath())
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m := &Manifest{
		Name:          v.GetString("library.name"),
		ID:            v.GetString("library.id"),
		SchemaVersion: v.GetInt("library.schema_version"),
	}
	if ts := v.GetString("library.created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			m.CreatedAt = t
		}
	}
	return m, nil
}
