package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles parses dotenv files and merges them in order, later files
// overriding earlier keys. Relative paths are resolved against baseDir.
func LoadEnvFiles(baseDir string, files []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, name := range files {
		if name == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}

		vars, err := loadEnvFile(path)
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged, nil
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return godotenv.Parse(f)
}

// ScriptEnv loads settings.env_files relative to the configuration file.
func (c *Config) ScriptEnv() (map[string]string, error) {
	if len(c.Settings.EnvFiles) == 0 {
		return nil, nil
	}
	baseDir := "."
	if c.Path != "" {
		baseDir = filepath.Dir(c.Path)
	}
	return LoadEnvFiles(baseDir, c.Settings.EnvFiles)
}
