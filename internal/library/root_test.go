package library

import (
	"os"
	"path/filepath"
	"testing"
)

// TestInitAndDiscover verifies init writes the manifest and discovery walks
// up from a nested directory.
func TestInitAndDiscover(t *testing.T) {
	dir := t.TempDir()

	root, err := Init(dir, "my-library")
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if _, err := os.Stat(root.ManifestPath()); err != nil {
		t.Errorf("manifest missing: %v", err)
	}
	if _, err := os.Stat(root.CardsDir()); err != nil {
		t.Errorf("cards dir missing: %v", err)
	}

	nested := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	found := Discover(nested)
	if found == nil {
		t.Fatal("Discover() from nested dir found nothing")
	}
	if found.Path() != root.Path() {
		t.Errorf("Discover() = %s, want %s", found.Path(), root.Path())
	}

	if Discover(t.TempDir()) != nil {
		t.Error("Discover() outside any library should return nil")
	}
}

// TestInit_RejectsExisting verifies double init fails.
func TestInit_RejectsExisting(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir, "one"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := Init(dir, "two"); err == nil {
		t.Error("second Init() should fail")
	}
}

// TestManifestRoundTrip verifies the identity fields survive write and read.
func TestManifestRoundTrip(t *testing.T) {
	root, err := Init(t.TempDir(), "research")
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	m, err := root.ReadManifest()
	if err != nil {
		t.Fatalf("ReadManifest() failed: %v", err)
	}
	if m.Name != "research" {
		t.Errorf("Name = %q, want research", m.Name)
	}
	if m.ID == "" {
		t.Error("ID should be generated")
	}
	if m.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", m.SchemaVersion, SchemaVersion)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

// TestRelAbs verifies path conversion and the outside-root rejection.
func TestRelAbs(t *testing.T) {
	root := NewRoot("/lib")

	if got := root.Abs("a/b"); got != filepath.Join("/lib", "a", "b") {
		t.Errorf("Abs(a/b) = %q", got)
	}
	if got := root.Abs(""); got != "/lib" {
		t.Errorf("Abs(\"\") = %q, want /lib", got)
	}

	rel, err := root.Rel(filepath.Join("/lib", "a", "b"))
	if err != nil || rel != "a/b" {
		t.Errorf("Rel() = %q, %v; want a/b", rel, err)
	}
	rel, err = root.Rel("/lib")
	if err != nil || rel != "" {
		t.Errorf("Rel(root) = %q, %v; want empty", rel, err)
	}
	if _, err := root.Rel("/elsewhere/x"); err == nil {
		t.Error("Rel() outside the root should fail")
	}
}

// TestLoadConfig_Defaults verifies a missing config file yields defaults.
func TestLoadConfig_Defaults(t *testing.T) {
	root, err := Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	cfg, err := root.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.DebounceMS != 2000 {
		t.Errorf("DebounceMS = %d, want 2000", cfg.DebounceMS)
	}
	if cfg.MinFileSizeBytes != 1024 {
		t.Errorf("MinFileSizeBytes = %d, want 1024", cfg.MinFileSizeBytes)
	}
	if len(cfg.WatchExtensions) == 0 {
		t.Error("WatchExtensions should default to the document allowlist")
	}
	if cfg.HashMoveDetection {
		t.Error("HashMoveDetection should default to off")
	}
}

// TestLoadConfig_Overrides verifies config.toml values win over defaults.
func TestLoadConfig_Overrides(t *testing.T) {
	root, err := Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	toml := "[watch]\ndebounce_ms = 500\nextensions = [\"pdf\"]\n\n[scan]\nhash_move_detection = true\n"
	if err := os.WriteFile(root.ConfigPath(), []byte(toml), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := root.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.DebounceMS != 500 {
		t.Errorf("DebounceMS = %d, want 500", cfg.DebounceMS)
	}
	if len(cfg.WatchExtensions) != 1 || cfg.WatchExtensions[0] != "pdf" {
		t.Errorf("WatchExtensions = %v, want [pdf]", cfg.WatchExtensions)
	}
	if !cfg.HashMoveDetection {
		t.Error("HashMoveDetection should be enabled by the override")
	}
	if cfg.MinFileSizeBytes != 1024 {
		t.Errorf("MinFileSizeBytes = %d, want default kept", cfg.MinFileSizeBytes)
	}
}
