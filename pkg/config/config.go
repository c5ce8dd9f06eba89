package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Source resolves settings from the environment and an optional YAML file. Environment
// variables win over file values; file keys are the lower-cased variable names.
type Source struct {
	v *viper.Viper
}

// NewSource returns a Source. An empty configFile reads the environment only.
func NewSource(configFile string) (Source, error) {
	v := viper.New()
	v.AutomaticEnv()
	if path := strings.TrimSpace(configFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Source{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return Source{v: v}, nil
}

// LoadEnvFile loads ENV_FILE_PATH into the process environment when it is set.
// Variables already present are left untouched.
func LoadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE_PATH"))
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// String returns key or fallback when unset.
func (s Source) String(key, fallback string) string {
	if s.v == nil || !s.v.IsSet(key) {
		return fallback
	}
	return s.v.GetString(key)
}

// Int returns key as integer or fallback when unset or malformed.
func (s Source) Int(key string, fallback int) int {
	if s.v == nil || !s.v.IsSet(key) {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(s.v.GetString(key)))
	if err != nil {
		slog.Warn("invalid integer setting", "key", key, "error", err)
		return fallback
	}
	return parsed
}

// Bool returns key as bool or fallback when unset or malformed.
func (s Source) Bool(key string, fallback bool) bool {
	if s.v == nil || !s.v.IsSet(key) {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(s.v.GetString(key)))
	if err != nil {
		slog.Warn("invalid boolean setting", "key", key, "error", err)
		return fallback
	}
	return parsed
}

func env() Source {
	s, _ := NewSource("")
	return s
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	return env().String(key, fallback)
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	return env().Int(key, fallback)
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	return env().Bool(key, fallback)
}
