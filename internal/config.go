package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DefaultAPIBaseURL is the local development backend.
const DefaultAPIBaseURL = "http://localhost:8080/api"

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	API      APIConfig         `yaml:"api"`
	Session  SessionConfig     `yaml:"session"`
	Articles ArticlesConfig    `yaml:"articles"`
	Notify   NotifyConfig      `yaml:"notify"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Articles.Validate(); err != nil {
		return err
	}
	return c.Notify.Validate()
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

// HTTPConfig holds the local frontend server configuration.
// AccessToken, when set, is required as a Bearer token on every frontend route.
type HTTPConfig struct {
	Port        int    `yaml:"port"`
	AccessToken string `yaml:"access_token"`
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

// APIConfig describes the ThoughtNest backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// SessionConfig holds the path of the persisted session database.
type SessionConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ArticlesConfig controls article listing and uploads.
type ArticlesConfig struct {
	PageSize       int   `yaml:"page_size"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Validate validates the articles configuration.
func (c *ArticlesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1))),
	)
}

// NotifyConfig controls the notification retry policy and the live event
// stream. A zero Heartbeat disables keepalive comments.
type NotifyConfig struct {
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	QueueSize   int           `yaml:"queue_size"`
	Heartbeat   time.Duration `yaml:"events_heartbeat"`
}

// Validate validates the notification configuration.
func (c *NotifyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RetryDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Heartbeat, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3000,
			},
		},
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			Path: "./thoughtnest-session.db",
		},
		Articles: ArticlesConfig{
			PageSize:       5,
			MaxUploadBytes: 200 << 10,
		},
		Notify: NotifyConfig{
			RetryDelay:  250 * time.Millisecond,
			MaxAttempts: 4,
			QueueSize:   64,
			Heartbeat:   30 * time.Second,
		},
	}
}
