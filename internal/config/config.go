package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Sensay      SensayConfig              `json:"sensay"`
}

type BasicConfig struct {
	ServerAddress    string `json:"server_address"`
	AuthTokenTTLMins int    `json:"auth_token_ttl_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SensayConfig describes the upstream replica API. The organization secret is
// deployment-time configuration and is never accepted per request.
type SensayConfig struct {
	APIBaseURL         string `json:"api_base_url"`
	OrganizationSecret string `json:"organization_secret"`
	ReplicaID          string `json:"replica_id"`
	APIVersion         string `json:"api_version"`
	AttemptTimeoutSecs int    `json:"attempt_timeout_seconds"`
}

// AttemptTimeout returns the per-attempt upstream timeout.
func (s SensayConfig) AttemptTimeout() time.Duration {
	if s.AttemptTimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.AttemptTimeoutSecs) * time.Second
}

// Load reads configuration from the provided path (defaults to config.json).
// Secrets may be supplied through the environment instead of the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if secret := os.Getenv("SENSAY_ORGANIZATION_SECRET"); secret != "" {
		cfg.Sensay.OrganizationSecret = secret
	}
	if base := os.Getenv("SENSAY_API_BASE_URL"); base != "" {
		cfg.Sensay.APIBaseURL = base
	}
	if replica := os.Getenv("SENSAY_REPLICA_ID"); replica != "" {
		cfg.Sensay.ReplicaID = replica
	}

	return &cfg, nil
}

// Validate checks deployment-time requirements once, at startup, so requests
// never reach a half-configured gateway.
func (c *Config) Validate() error {
	if c.Sensay.APIBaseURL == "" {
		return fmt.Errorf("sensay api_base_url must be configured")
	}
	if c.Sensay.OrganizationSecret == "" {
		return fmt.Errorf("sensay organization_secret must be configured")
	}
	if c.Sensay.ReplicaID == "" {
		return fmt.Errorf("sensay replica_id must be configured")
	}
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	return nil
}
