package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL || cfg.FeedURL != DefaultFeedURL {
		t.Fatalf("unexpected urls: %+v", cfg)
	}
	if cfg.Feed != FeedWebSocket {
		t.Fatalf("expected websocket feed, got %q", cfg.Feed)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("unexpected timeout: %s", cfg.RequestTimeout)
	}
	if cfg.GRPCAddr != DefaultGRPCAddr || cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("unexpected addrs: %+v", cfg)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "hivewatch.yaml")
	data := `
api_url: http://backend:8000
feed: mqtt
mqtt:
  broker: tcp://broker:1883
  username: hive
request_timeout: 3s
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HIVEWATCH_API_URL", "https://api.example.com")
	t.Setenv("HIVEWATCH_MQTT_PASSWORD", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "https://api.example.com" {
		t.Fatalf("env did not override api_url: %q", cfg.APIURL)
	}
	if cfg.Feed != FeedMQTT || cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("unexpected feed config: %+v", cfg)
	}
	if cfg.MQTT.Username != "hive" || cfg.MQTT.Password != "secret" {
		t.Fatalf("unexpected mqtt credentials: %+v", cfg.MQTT)
	}
	if cfg.MQTT.Topic != "beehive/{device_id}/telemetry" {
		t.Fatalf("unexpected default topic: %q", cfg.MQTT.Topic)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.RequestTimeout)
	}
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("unexpected level %v (%v)", level, err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HIVEWATCH_FEED_URL=wss://feed.example.com\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("HIVEWATCH_FEED_URL", "")
	os.Unsetenv("HIVEWATCH_FEED_URL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FeedURL != "wss://feed.example.com" {
		t.Fatalf("expected .env feed url, got %q", cfg.FeedURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	cases := map[string]func(*Config){
		"api scheme":  func(c *Config) { c.APIURL = "ftp://backend" },
		"feed scheme": func(c *Config) { c.FeedURL = "http://localhost:8000" },
		"feed kind":   func(c *Config) { c.Feed = "sse" },
		"mqtt topic":  func(c *Config) { c.Feed = FeedMQTT; c.MQTT.Topic = "beehive/all" },
		"timeout":     func(c *Config) { c.RequestTimeout = -time.Second },
		"grpc addr":   func(c *Config) { c.GRPCAddr = "" },
		"log level":   func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Validate(valid()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestApplyEnvRejectsBadTimeout(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "HIVEWATCH_REQUEST_TIMEOUT" {
			return "soon", true
		}
		return "", false
	}
	if err := applyEnv(&Config{}, lookup); err == nil {
		t.Fatalf("expected error for bad timeout")
	}
}
