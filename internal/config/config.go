package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joshp123/hivewatch/internal/livefeed"
)

const (
	DefaultAPIURL         = "http://localhost:8000"
	DefaultFeedURL        = "ws://localhost:8000"
	DefaultMQTTBroker     = "tcp://localhost:1883"
	DefaultMQTTClientID   = "hivewatch"
	DefaultRequestTimeout = 10 * time.Second
	DefaultGRPCAddr       = "0.0.0.0:9000"
	DefaultHTTPAddr       = "0.0.0.0:8080"
	DefaultLogLevel       = "info"

	FeedWebSocket = "websocket"
	FeedMQTT      = "mqtt"

	envPrefix = "HIVEWATCH_"
)

type Config struct {
	APIURL         string        `yaml:"api_url"`
	FeedURL        string        `yaml:"feed_url"`
	Feed           string        `yaml:"feed"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	HTTPAddr       string        `yaml:"http_addr"`
	LogLevel       string        `yaml:"log_level"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// Load reads the optional YAML file at path, then a .env file in the working
// directory if present, then HIVEWATCH_* environment overrides. Defaults fill
// whatever is still unset and the result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"API_URL":        &cfg.APIURL,
		"FEED_URL":       &cfg.FeedURL,
		"FEED":           &cfg.Feed,
		"MQTT_BROKER":    &cfg.MQTT.Broker,
		"MQTT_CLIENT_ID": &cfg.MQTT.ClientID,
		"MQTT_USERNAME":  &cfg.MQTT.Username,
		"MQTT_PASSWORD":  &cfg.MQTT.Password,
		"MQTT_TOPIC":     &cfg.MQTT.Topic,
		"GRPC_ADDR":      &cfg.GRPCAddr,
		"HTTP_ADDR":      &cfg.HTTPAddr,
		"LOG_LEVEL":      &cfg.LogLevel,
	}
	for key, dest := range strs {
		if value, ok := lookup(envPrefix + key); ok && value != "" {
			*dest = value
		}
	}

	if value, ok := lookup(envPrefix + "REQUEST_TIMEOUT"); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.Feed == "" {
		cfg.Feed = FeedWebSocket
	}
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = DefaultMQTTBroker
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = livefeed.DefaultMQTTTopic
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := validateURL("api_url", cfg.APIURL, "http", "https"); err != nil {
		return err
	}

	switch cfg.Feed {
	case FeedWebSocket:
		if err := validateURL("feed_url", cfg.FeedURL, "ws", "wss"); err != nil {
			return err
		}
	case FeedMQTT:
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		if !strings.Contains(cfg.MQTT.Topic, "{device_id}") {
			return fmt.Errorf("mqtt.topic must contain {device_id}")
		}
	default:
		return fmt.Errorf("feed must be %q or %q, got %q", FeedWebSocket, FeedMQTT, cfg.Feed)
	}

	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if cfg.GRPCAddr == "" {
		return fmt.Errorf("grpc_addr is required")
	}
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s url, got %q", key, strings.Join(schemes, " or "), raw)
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
