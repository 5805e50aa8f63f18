package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Snapshots SnapshotsConfig   `yaml:"snapshots"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	History   HistoryConfig     `yaml:"history"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Snapshots.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SnapshotsConfig holds the path to the board snapshot directory.
type SnapshotsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the snapshots configuration.
func (c *SnapshotsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// HistoryConfig bounds the per-board undo log.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Limit, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Snapshots: SnapshotsConfig{
			Path: "./snapshots",
		},
		SQLite: SQLiteConfig{
			Path: "./tafl.db",
		},
		History: HistoryConfig{
			Limit: 100,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
