package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "zapdesk"
	DefaultPGSSLMode    = "disable"
	DefaultMediaDir     = "public"
	DefaultGatewayURL   = "http://127.0.0.1:8090"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Media    MediaConfig    `toml:"media"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN builds the pgx connection string for this Postgres configuration.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type MediaConfig struct {
	Dir string `toml:"dir"`
}

// WhatsAppConfig tunes the protocol session supervisor and routing engine.
type WhatsAppConfig struct {
	GatewayURL         string `toml:"gateway_url"`
	ReconnectBackoffMs int    `toml:"reconnect_backoff_ms"`
	PairingRetryLimit  int    `toml:"pairing_retry_limit"`
	MediaRetryLimit    int    `toml:"media_retry_limit"`
	DebounceDelayMs    int    `toml:"debounce_delay_ms"`
}

// ReconnectBackoff returns the supervisor restart delay after a
// non-terminal disconnect.
func (c WhatsAppConfig) ReconnectBackoff() time.Duration {
	if c.ReconnectBackoffMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.ReconnectBackoffMs) * time.Millisecond
}

// DebounceDelay returns the coalescing window for automated sends.
func (c WhatsAppConfig) DebounceDelay() time.Duration {
	if c.DebounceDelayMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.DebounceDelayMs) * time.Millisecond
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Media: MediaConfig{
			Dir: DefaultMediaDir,
		},
		WhatsApp: WhatsAppConfig{
			GatewayURL:         DefaultGatewayURL,
			ReconnectBackoffMs: 2000,
			PairingRetryLimit:  3,
			MediaRetryLimit:    10,
			DebounceDelayMs:    3000,
		},
	}
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("stat config: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
