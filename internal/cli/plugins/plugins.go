// Package plugins discovers declarative format files and registers their
// formats. A format plugin is a YAML file with a top-level formats list, in
// the same shape as the formats section of the configuration file.
//
// Plugin locations (searched in order):
//  1. formats/ next to the logsniff binary
//  2. ~/.logsniff/formats/
//  3. every directory listed in $LOGSNIFF_FORMAT_PATH
package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/config"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

// EnvFormatPath lists extra plugin directories, separated like PATH.
const EnvFormatPath = "LOGSNIFF_FORMAT_PATH"

// Loaded describes one registered plugin format.
type Loaded struct {
	ID   string
	File string
}

// Dirs returns the plugin directories in search order. Directories that do
// not exist are included; Discover skips them.
func Dirs() []string {
	var dirs []string

	if execPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(execPath), "formats"))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".logsniff", "formats"))
	}

	for _, dir := range filepath.SplitList(os.Getenv(EnvFormatPath)) {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// Discover returns the format files found in dirs. Files are sorted by name
// within a directory and directories keep their order.
func Discover(dirs []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading plugin directory %s: %w", dir, err)
		}

		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() && isFormatFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}

	return files, nil
}

// Register loads every format file and registers its formats on reg. A
// format whose identifier is already registered fails the whole load.
func Register(reg *registry.Registry, files []string, logger *zap.Logger) ([]Loaded, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var loaded []Loaded
	for _, file := range files {
		formats, err := config.LoadFormats(file)
		if err != nil {
			return nil, fmt.Errorf("loading format plugin %s: %w", file, err)
		}
		for i := range formats {
			if err := reg.Register(formats[i].Descriptor()); err != nil {
				return nil, fmt.Errorf("registering format plugin %s: %w", file, err)
			}
			loaded = append(loaded, Loaded{ID: formats[i].ID, File: file})
			logger.Debug("format plugin registered",
				zap.String("format", formats[i].ID),
				zap.String("file", file))
		}
	}
	return loaded, nil
}

// isFormatFile reports whether name looks like a YAML format file.
func isFormatFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
