package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "rotated"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"c.log", "a.log", "b.log", "notes.txt", "rotated/messages.1.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name     string
		patterns []string
		want     int
	}{
		{"single file", []string{filepath.Join(dir, "a.log")}, 1},
		{"glob", []string{filepath.Join(dir, "*.log")}, 3},
		{"deduplicated", []string{filepath.Join(dir, "a.log"), filepath.Join(dir, "*.log")}, 3},
		{"multiple patterns", []string{filepath.Join(dir, "*.log"), filepath.Join(dir, "rotated", "*.gz")}, 4},
		{"no match kept literally", []string{filepath.Join(dir, "*.missing")}, 1},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandGlobs(tt.patterns)
			if err != nil {
				t.Fatalf("ExpandGlobs() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ExpandGlobs() = %v, want %d paths", got, tt.want)
			}
			if !sort.StringsAreSorted(got) {
				t.Errorf("ExpandGlobs() result not sorted: %v", got)
			}
		})
	}
}

func TestExpandGlobs_InvalidPattern(t *testing.T) {
	if _, err := ExpandGlobs([]string{"[invalid"}); err == nil {
		t.Error("ExpandGlobs() expected error for invalid pattern")
	}
}
