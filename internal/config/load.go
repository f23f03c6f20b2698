package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is the resolved config file, the effective values and any
// non-fatal warnings.
type Loaded struct {
	Path     string
	Format   Format
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves the config path and parses the file over Default(). A
// missing file yields defaults and a warning.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Loaded{
			Path:     path,
			Format:   FormatNone,
			Config:   Default(),
			Warnings: []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}},
		}, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("stat config %q: %w", path, err)
	case info.IsDir():
		return Loaded{}, fmt.Errorf("config %q is a directory", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	format := DetectFormat(string(content))
	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse %s config %q: %w", format, path, err)
	}

	return Loaded{
		Path:     path,
		Format:   format,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}
