package config

import (
	"os"
	"path/filepath"
)

const (
	EnvConfigPath = "MESHCORE_CONFIG"
	configDirName = "meshcore"
	configFile    = "client.json"
)

// ResolvePath returns the configuration file path: MESHCORE_CONFIG if set,
// otherwise the OS user-config directory joined with meshcore/client.json.
func ResolvePath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configDirName, configFile), nil
}
