package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file from the directory holding cfgPath, or
// from the working directory when cfgPath is empty, so that ${VAR}
// references in the config can be kept out of the YAML. Variables
// already set in the environment win. A missing file is not an error.
func LoadDotEnv(cfgPath string) error {
	dir := "."
	if cfgPath != "" {
		dir = filepath.Dir(cfgPath)
	}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
