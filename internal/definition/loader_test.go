package definition

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	def, err := l.LoadFile("testdata/orders/definition.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if def.Domain != "orders" {
		t.Errorf("Domain = %q, want orders", def.Domain)
	}
	if def.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", def.Version)
	}
	if len(def.Screens) != 1 {
		t.Fatalf("Screens = %d, want 1", len(def.Screens))
	}
	sc := def.Screens[0]
	if sc.ID != "orders" || sc.PageSize != 5 {
		t.Errorf("screen = %q/%d, want orders/5", sc.ID, sc.PageSize)
	}
	if sc.Domain != "orders" {
		t.Errorf("screen Domain = %q, want orders", sc.Domain)
	}
	if sc.Dropdown == nil || sc.Dropdown.Mode != "timeframe" {
		t.Errorf("Dropdown = %+v, want timeframe mode", sc.Dropdown)
	}
	if len(sc.Views) != 3 {
		t.Errorf("Views = %d, want 3", len(sc.Views))
	}
	if want := filepath.Join("testdata", "orders", "orders.seed.yaml"); sc.DataSource.SeedFile != want {
		t.Errorf("SeedFile = %q, want %q", sc.DataSource.SeedFile, want)
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.SourceFile != "testdata/orders/definition.yaml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Error("LoadFile() expected error for missing file")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("screens: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().LoadFile(path); err == nil {
		t.Error("LoadFile() expected parse error")
	}
}

func TestLoader_LoadFile_absolute_seed_untouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallets.yaml")
	content := "domain: wallets\nversion: \"1\"\nscreens:\n  - id: wallets\n    data_source:\n      seed_file: /srv/seeds/wallets.yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	def, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := def.Screens[0].DataSource.SeedFile; got != "/srv/seeds/wallets.yaml" {
		t.Errorf("SeedFile = %q", got)
	}
}

func TestLoader_LoadAll(t *testing.T) {
	l := NewLoader()
	defs, err := l.LoadAll([]string{"testdata"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	// The seed file has no domain and is skipped.
	if len(defs) != 1 {
		t.Fatalf("LoadAll() = %d definitions, want 1", len(defs))
	}
	if defs[0].Domain != "orders" {
		t.Errorf("Domain = %q, want orders", defs[0].Domain)
	}
}

func TestLoader_LoadAll_missing_directory(t *testing.T) {
	_, err := NewLoader().LoadAll([]string{"testdata/does-not-exist"})
	if err == nil {
		t.Error("LoadAll() expected error for missing directory")
	}
}

func TestLoader_checksum_changes_with_content(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "d.yaml")
	l := NewLoader()

	if err := os.WriteFile(path, []byte("domain: a\nversion: \"1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	first, err := l.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("domain: a\nversion: \"2\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := l.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if first.Checksum == second.Checksum {
		t.Error("checksum should change when content changes")
	}
}
