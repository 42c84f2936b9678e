package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"authflow/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/authflow"
	configFileName = "config.yaml"

	// EnvClientSecret overrides the configured client secret.
	EnvClientSecret = "AUTHFLOW_CLIENT_SECRET"
)

// GetDefaultConfigPathOrPanic returns ~/.config/authflow.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from the given directory on top of the
// defaults. A missing file is not an error.
func LoadConfig(configPath string) (AuthflowConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnv(&config)
			return config, nil
		}
		return AuthflowConfig{}, ConfigurationError{
			FilePath:  configFilePath,
			FileName:  configFileName,
			ErrorType: "io",
			Message:   "cannot read configuration file",
			Details:   err.Error(),
		}
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return AuthflowConfig{}, ConfigurationError{
			FilePath:    configFilePath,
			FileName:    configFileName,
			ErrorType:   "parse",
			Message:     "malformed YAML",
			Details:     err.Error(),
			Suggestions: []string{"Durations are written like 10m or 90s"},
		}
	}

	applyEnv(&config)
	logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func applyEnv(config *AuthflowConfig) {
	if secret := os.Getenv(EnvClientSecret); secret != "" {
		config.ClientSecret = secret
	}
}
