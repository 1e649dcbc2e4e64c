package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// GlobalConfig is the per-user credentials file, ~/.config/finknow/config.json on Linux.
type GlobalConfig struct {
	APIKey string `json:"api_key"`
	APIURL string `json:"api_url"`
}

// configPathFunc is swapped out by tests.
var configPathFunc = defaultConfigPath

func defaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "finknow", "config.json"), nil
}

// GetConfigPath returns the full path to the config.json file
func GetConfigPath() (string, error) {
	return configPathFunc()
}

// LoadGlobalConfig reads the credentials file. A missing file yields a nil config and no error.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// SaveGlobalConfig writes the credentials file readable by the owner only.
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeleteGlobalConfig removes the credentials file. Removing a missing file is not an error.
func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.Remove(configPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// CredentialSource says where a credential came from.
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceDefault      CredentialSource = "default"
	SourceNone         CredentialSource = "none"
)

// Credentials are the resolved API key and URL with their sources.
type Credentials struct {
	APIKey    string           `json:"-"`
	APIURL    string           `json:"api_url"`
	KeySource CredentialSource `json:"key_source"`
	URLSource CredentialSource `json:"url_source"`
}

// ResolveCredentials resolves each setting on its own: flag, then environment (including .env once
// loaded), then the global config. The URL falls back to the local default; the key may stay empty
// because servers can run without authentication.
func ResolveCredentials(flagKey, flagURL string) (Credentials, error) {
	creds := Credentials{KeySource: SourceNone, URLSource: SourceNone}
	pick := func(value *string, source *CredentialSource, candidate string, from CredentialSource) {
		if *value == "" && candidate != "" {
			*value, *source = candidate, from
		}
	}

	pick(&creds.APIKey, &creds.KeySource, flagKey, SourceFlag)
	pick(&creds.APIURL, &creds.URLSource, flagURL, SourceFlag)
	pick(&creds.APIKey, &creds.KeySource, os.Getenv(envAPIKey), SourceEnv)
	pick(&creds.APIURL, &creds.URLSource, os.Getenv(envAPIURL), SourceEnv)

	if creds.APIKey == "" || creds.APIURL == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return creds, err
		}
		if global != nil {
			pick(&creds.APIKey, &creds.KeySource, global.APIKey, SourceGlobalConfig)
			pick(&creds.APIURL, &creds.URLSource, global.APIURL, SourceGlobalConfig)
		}
	}

	pick(&creds.APIURL, &creds.URLSource, defaultAPIURL, SourceDefault)
	return creds, nil
}
