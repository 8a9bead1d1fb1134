package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Format string `yaml:"format" validate:"oneof=text json"`
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type StorageConfig struct {
	SQLitePath  string `yaml:"sqlite_path" validate:"required"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
}

type TransportConfig struct {
	URL                string        `yaml:"url" validate:"required,url"`
	Codec              string        `yaml:"codec" validate:"oneof=json cbor"`
	Payload            string        `yaml:"payload" validate:"oneof=simple rich"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay" validate:"gt=0"`
	ReconnectDelayMax  time.Duration `yaml:"reconnect_delay_max" validate:"gtefield=ReconnectDelay"`
	ReconnectAttempts  int           `yaml:"reconnect_attempts" validate:"gte=0"`
	ReplayLastLocation *bool         `yaml:"replay_last_location"`
}

type SensorConfig struct {
	TrackFile    string        `yaml:"track_file"`
	Interval     time.Duration `yaml:"interval" validate:"gt=0"`
	HighAccuracy bool          `yaml:"high_accuracy"`
	MaxSampleAge time.Duration `yaml:"max_sample_age" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
}

type RoutingConfig struct {
	BaseURL           string        `yaml:"base_url" validate:"required,url"`
	Profile           string        `yaml:"profile" validate:"required"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gte=0"`
	RetryAttempts     int           `yaml:"retry_attempts" validate:"gte=0,lte=10"`
	ETAConcurrency    int           `yaml:"eta_concurrency" validate:"gte=1,lte=64"`
	ETACacheTTL       time.Duration `yaml:"eta_cache_ttl" validate:"gte=0"`
}

type MotionConfig struct {
	Duration time.Duration `yaml:"duration" validate:"gt=0"`
	Frame    time.Duration `yaml:"frame" validate:"gt=0"`
}

type StatusConfig struct {
	ClearAfter time.Duration `yaml:"clear_after" validate:"gt=0"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Routing   RoutingConfig   `yaml:"routing"`
	Motion    MotionConfig    `yaml:"motion"`
	Status    StatusConfig    `yaml:"status"`
}

// Default returns the configuration used when no file is given.
// Reconnect and sensor values match the web client's socket and
// geolocation options.
func Default() AppConfig {
	replay := true
	return AppConfig{
		Log:     LogConfig{Format: "text", Level: "info"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Storage: StorageConfig{SQLitePath: "data/tracker.db"},
		Transport: TransportConfig{
			URL:                "ws://localhost:5000/ws",
			Codec:              "json",
			Payload:            "rich",
			ReconnectDelay:     time.Second,
			ReconnectDelayMax:  5 * time.Second,
			ReconnectAttempts:  5,
			ReplayLastLocation: &replay,
		},
		Sensor: SensorConfig{
			Interval:     time.Second,
			HighAccuracy: true,
			Timeout:      5 * time.Second,
		},
		Routing: RoutingConfig{
			BaseURL:           "https://api.openrouteservice.org",
			Profile:           "driving-car",
			RequestsPerMinute: 40,
			RetryAttempts:     2,
			ETAConcurrency:    5,
			ETACacheTTL:       30 * time.Second,
		},
		Motion: MotionConfig{Duration: 1500 * time.Millisecond, Frame: 16 * time.Millisecond},
		Status: StatusConfig{ClearAfter: 5 * time.Second},
	}
}

// Get returns the environment variable key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads a YAML file over the defaults, applies environment
// overrides for secrets and validates the result. An empty path loads
// defaults and environment only.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("load config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("load config: parse %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Routing.APIKey = Get("ORS_API_KEY", cfg.Routing.APIKey)
	cfg.Storage.DatabaseURL = Get("DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Storage.RedisURL = Get("REDIS_URL", cfg.Storage.RedisURL)
	cfg.Transport.URL = Get("SOCKET_SERVER_URL", cfg.Transport.URL)
	cfg.HTTP.Addr = Get("HTTP_ADDR", cfg.HTTP.Addr)
}

// ReplayLast reports the effective reconnect replay setting.
func (t TransportConfig) ReplayLast() bool {
	return t.ReplayLastLocation == nil || *t.ReplayLastLocation
}
