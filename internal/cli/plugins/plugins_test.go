package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ccollicutt/logsniff/pkg/formats"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

const haproxyFormats = `formats:
  - id: haproxy
    pattern: '^(?<client>\S+) \[(?<timestamp>[^\]]+)\] (?<frontend>\S+)'
    timestamp_field: timestamp
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvFormatPath, strings.Join([]string{"/opt/a", "", "/opt/b"}, string(os.PathListSeparator)))

	dirs := Dirs()
	if len(dirs) != 4 {
		t.Fatalf("Dirs() = %v, want 4 entries", dirs)
	}
	if filepath.Base(dirs[0]) != "formats" {
		t.Errorf("first dir = %s, want the formats dir next to the binary", dirs[0])
	}
	if dirs[1] != filepath.Join(home, ".logsniff", "formats") {
		t.Errorf("home dir = %s", dirs[1])
	}
	if dirs[2] != "/opt/a" || dirs[3] != "/opt/b" {
		t.Errorf("path dirs = %v", dirs[2:])
	}
}

func TestDiscover(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	writeFile(t, first, "b.yaml", haproxyFormats)
	writeFile(t, first, "a.yml", haproxyFormats)
	writeFile(t, first, "notes.txt", "ignored")
	writeFile(t, first, ".hidden.yaml", "ignored")
	if err := os.Mkdir(filepath.Join(first, "dir.yaml"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, second, "c.YAML", haproxyFormats)

	files, err := Discover([]string{first, filepath.Join(first, "missing"), second, first})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := []string{
		filepath.Join(first, "a.yml"),
		filepath.Join(first, "b.yaml"),
		filepath.Join(second, "c.YAML"),
	}
	if len(files) != len(want) {
		t.Fatalf("Discover() = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestRegister(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "haproxy.yaml", haproxyFormats)

	reg, err := formats.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	loaded, err := Register(reg, []string{path}, nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "haproxy" || loaded[0].File != path {
		t.Errorf("Register() = %+v", loaded)
	}

	desc, err := reg.Resolve("haproxy")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.Rule.Stage != registry.StageKeyword {
		t.Errorf("Stage = %v, want keyword", desc.Rule.Stage)
	}

	// Without a stage the plugin goes after the built-in keyword clusters.
	keyword := reg.Stage(registry.StageKeyword)
	if len(keyword) == 0 || keyword[len(keyword)-1].ID != "haproxy" {
		t.Fatalf("haproxy is not last in the keyword stage: %v", ids(keyword))
	}
	for _, d := range reg.Stage(registry.StageStructural) {
		if d.ID == "haproxy" {
			t.Error("haproxy registered in the structural stage")
		}
	}
}

func TestRegister_ExplicitStructural(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "haproxy.yaml", strings.Replace(haproxyFormats, "    timestamp_field", "    stage: structural\n    timestamp_field", 1))

	reg, err := formats.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := Register(reg, []string{path}, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	desc, err := reg.Resolve("haproxy")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.Rule.Stage != registry.StageStructural {
		t.Errorf("Stage = %v, want structural", desc.Rule.Stage)
	}
}

func ids(descs []registry.Descriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.ID
	}
	return out
}

func TestRegister_Errors(t *testing.T) {
	dir := t.TempDir()
	dup := writeFile(t, dir, "dup.yaml", "formats:\n  - id: syslog\n    pattern: '^(?<message>.*)$'\n")
	bad := writeFile(t, dir, "bad.yaml", "formats:\n  - id: broken\n")

	reg, err := formats.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	_, err = Register(reg, []string{dup}, nil)
	var duplicate *registry.DuplicateFormatError
	if !errors.As(err, &duplicate) {
		t.Errorf("Register(dup) error = %v, want DuplicateFormatError", err)
	}

	if _, err := Register(reg, []string{bad}, nil); err == nil {
		t.Error("Register(bad) expected error")
	}

	if _, err := Register(reg, []string{filepath.Join(dir, "missing.yaml")}, nil); err == nil {
		t.Error("Register(missing) expected error")
	}
}

func TestIsFormatFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"web.yaml", true},
		{"web.yml", true},
		{"WEB.YAML", true},
		{".web.yaml", false},
		{"web.json", false},
		{"yaml", false},
	}
	for _, tt := range tests {
		if got := isFormatFile(tt.name); got != tt.want {
			t.Errorf("isFormatFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
