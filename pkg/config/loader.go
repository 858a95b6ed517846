package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/macup/macup/pkg/engine"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FileName is the base name of the configuration file, without extension.
const FileName = "macup"

// extensions are tried in order at every search location.
var extensions = []string{".toml", ".yaml", ".yml"}

// ErrNotFound is returned when no configuration file exists at any search
// location.
var ErrNotFound = errors.New("no macup configuration file found")

// FormatFor returns the encoding implied by the path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported config extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// SearchPaths returns the candidate configuration files in lookup order:
// the working directory, $XDG_CONFIG_HOME/macup (or ~/.config/macup), then
// ~/.macup.toml.
func SearchPaths() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}

	home, _ := os.UserHomeDir()
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, FileName))
	} else if home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", FileName))
	}

	var paths []string
	for _, dir := range dirs {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(dir, FileName+ext))
		}
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, "."+FileName+".toml"))
	}
	return paths
}

// Find resolves the configuration file. An explicit path must exist;
// otherwise the first existing file from SearchPaths is returned.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, path := range SearchPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// Load reads, decodes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Path = abs
	return cfg, nil
}

// LoadAuto finds and loads the configuration. explicit may be empty.
func LoadAuto(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Parse decodes and validates configuration data. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config

	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, engine.NewConfigValidationError("unknown key in config:\n"+strict.String(), nil)
			}
			var decErr *toml.DecodeError
			if errors.As(err, &decErr) {
				row, col := decErr.Position()
				return nil, engine.NewConfigValidationError(
					fmt.Sprintf("failed to decode config at line %d, column %d", row, col), err)
			}
			return nil, engine.NewConfigValidationError("failed to decode config", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, engine.NewConfigValidationError("failed to decode config", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
