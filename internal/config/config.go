// Package config resolves credentials and per-run settings from flags and
// the process environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	// EnvToken names the access token environment variable.
	EnvToken = "TELINV_ACCESS_TOKEN"
	// EnvBaseURL names the API base URL environment variable.
	EnvBaseURL = "TELINV_BASE_URL"
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://webexapis.com/v1"
)

// LoadDotenv loads a .env file into the process environment when present.
// A missing file is not an error; real environment variables win over file
// values either way.
func LoadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Token resolves the API access token: an explicit flag value wins, then the
// environment. Absence of both is a hard error — no network call can work
// without it.
func Token(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("no access token: pass --token or set %s", EnvToken)
}

// BaseURL resolves the API base URL: flag, then environment, then default.
func BaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		return v
	}
	return DefaultBaseURL
}

// NewRunID mints a run identifier: a UTC timestamp prefix for sortability
// plus a short random suffix for uniqueness.
func NewRunID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
