package interfaces

import (
	"os"
	"path/filepath"
)

// ConfigDir is where per-user settings are kept. MMIOSIM_CONFIG_DIR overrides the default.
func ConfigDir() (string, error) {
	if dir := os.Getenv("MMIOSIM_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mmiosim"), nil
}
