package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Mapping     MappingConfig     `toml:"mapping"`
	HTTP        HTTPConfig        `toml:"http"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify BearerConfig `toml:"spotify"`
	Tidal   TidalConfig  `toml:"tidal"`
	Deezer  DeezerConfig `toml:"deezer"`
}

// BearerConfig holds an OAuth2 access token obtained outside of plx.
type BearerConfig struct {
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	Expiry       time.Time `toml:"expiry"`
}

// TidalConfig contains TIDAL credentials plus the catalog country.
type TidalConfig struct {
	BearerConfig
	CountryCode string `toml:"country_code" default:"US" validate:"len=2"`
}

// DeezerConfig contains the ARL session secret and the proxy it is sent through.
type DeezerConfig struct {
	ARL      string `toml:"arl"`
	ProxyURL string `toml:"proxy_url" default:"http://127.0.0.1:8787" validate:"omitempty,url"`
}

// MappingConfig selects and tunes the track mapping source.
type MappingConfig struct {
	Source            string  `toml:"source" default:"sqlite" validate:"oneof=sqlite http"`
	BaseURL           string  `toml:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64 `toml:"requests_per_second" default:"20" validate:"gte=0"`
	Concurrency       int     `toml:"concurrency" default:"10" validate:"gte=1,lte=64"`
	CacheSize         int     `toml:"cache_size" default:"50000" validate:"gte=0"`
}

// HTTPConfig is the retry policy and pacing for provider requests.
type HTTPConfig struct {
	MaxRetries        int      `toml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	BaseDelay         Duration `toml:"base_delay" default:"1s"`
	MaxDelay          Duration `toml:"max_delay" default:"10s"`
	Timeout           Duration `toml:"timeout" default:"30s"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gte=0"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" default:"./plx.db" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" default:"10"`
	MaxIdleConns int    `toml:"max_idle_conns" default:"5"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host      string `toml:"host" default:"127.0.0.1"`
	Port      int    `toml:"port" default:"3000" validate:"gte=1,lte=65535"`
	RateLimit int    `toml:"rate_limit" default:"60" validate:"gte=0"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" default:"info" validate:"oneof=debug info warn error"`
}

// Duration is a [time.Duration] that decodes from TOML strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, text)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values from the file are overlaid with environment variables (a .env file next to
// the working directory is loaded first when present), then defaulted and validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	_ = godotenv.Load()
	config.applyEnv()

	if err := config.finalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	if err := config.finalize(); err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Mapping.Source == "http" && c.Mapping.BaseURL == "" {
		return fmt.Errorf("%w: mapping.base_url is required when mapping.source is http", ErrInvalidConfig)
	}
	return nil
}

// applyEnv overrides credentials and endpoints from the environment.
func (c *Config) applyEnv() {
	setString(&c.Credentials.Spotify.AccessToken, "SPOTIFY_ACCESS_TOKEN")
	setString(&c.Credentials.Spotify.RefreshToken, "SPOTIFY_REFRESH_TOKEN")
	setTime(&c.Credentials.Spotify.Expiry, "SPOTIFY_TOKEN_EXPIRY")
	setString(&c.Credentials.Tidal.AccessToken, "TIDAL_ACCESS_TOKEN")
	setString(&c.Credentials.Tidal.RefreshToken, "TIDAL_REFRESH_TOKEN")
	setTime(&c.Credentials.Tidal.Expiry, "TIDAL_TOKEN_EXPIRY")
	setString(&c.Credentials.Tidal.CountryCode, "TIDAL_COUNTRY_CODE")
	setString(&c.Credentials.Deezer.ARL, "DEEZER_ARL")
	setString(&c.Credentials.Deezer.ProxyURL, "DEEZER_PROXY_URL")
	setString(&c.Mapping.Source, "PLX_MAPPING_SOURCE")
	setString(&c.Mapping.BaseURL, "PLX_MAPPING_URL")
	setString(&c.Database.Path, "PLX_DATABASE_PATH")
	setString(&c.Log.Level, "PLX_LOG_LEVEL")
	if v := os.Getenv("PLX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setTime(dst *time.Time, key string) {
	if v := os.Getenv(key); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			*dst = t
		}
	}
}
