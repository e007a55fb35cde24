// Package config loads errand's configuration.
//
// Precedence, highest first:
//  1. Environment variables prefixed ERRAND_, with "__" separating sections
//     (ERRAND_LLM__BASE_URL -> llm.base_url).
//  2. The YAML file passed to Load.
//  3. Defaults.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ERRAND_"

const maxConfigFileSize = 1024 * 1024

// Config is the complete process configuration.
type Config struct {
	Env        string           `koanf:"env"`
	Log        LogConfig        `koanf:"log"`
	HTTP       HTTPConfig       `koanf:"http"`
	LLM        LLMConfig        `koanf:"llm"`
	Store      StoreConfig      `koanf:"store"`
	Cache      CacheConfig      `koanf:"cache"`
	Runner     RunnerConfig     `koanf:"runner"`
	Engine     EngineConfig     `koanf:"engine"`
	Validation ValidationConfig `koanf:"validation"`
	Security   SecurityConfig   `koanf:"security"`
	NATS       NATSConfig       `koanf:"nats"`
	Tools      ToolsConfig      `koanf:"tools"`
	Input      InputConfig      `koanf:"input"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// LLMConfig configures the model client and its resilience wrapper.
type LLMConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxAttempts       int           `koanf:"max_attempts"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// StoreConfig selects the checkpoint and task store.
type StoreConfig struct {
	Driver        string        `koanf:"driver"`
	DSN           string        `koanf:"dsn"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	Prefix        string        `koanf:"prefix"`
	TTL           time.Duration `koanf:"ttl"`
	// LockTTL bounds how long a turn may hold a task lock. Zero disables
	// locking.
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// CacheConfig configures the graph cache.
type CacheConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RunnerConfig configures the step runner.
type RunnerConfig struct {
	BatchCap    int           `koanf:"batch_cap"`
	ToolTimeout time.Duration `koanf:"tool_timeout"`
	// ToolLatency delays every simulated tool call.
	ToolLatency time.Duration `koanf:"tool_latency"`
}

// EngineConfig configures the state machine.
type EngineConfig struct {
	MaxSteps int `koanf:"max_steps"`
}

// ValidationConfig configures the validation node.
type ValidationConfig struct {
	MaxPayloadChars int `koanf:"max_payload_chars"`
	MaxRefinements  int `koanf:"max_refinements"`
}

// SecurityConfig configures checkpoint encryption and PII masking.
type SecurityConfig struct {
	EncryptionKey string   `koanf:"encryption_key"`
	FallbackKeys  []string `koanf:"fallback_keys"`
	PIIKeys       []string `koanf:"pii_keys"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// ToolsConfig points at the process tool catalog.
type ToolsConfig struct {
	Catalog string `koanf:"catalog"`
}

// InputConfig bounds user input.
type InputConfig struct {
	MaxSize int `koanf:"max_size"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Env:  "development",
		Log:  LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{Addr: ":8080", ShutdownTimeout: 5 * time.Second, AllowedOrigins: []string{"*"}},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			Burst:       1,
		},
		Store:      StoreConfig{Driver: "memory", Prefix: "errand", RedisAddr: "localhost:6379"},
		Cache:      CacheConfig{TTL: 30 * time.Minute, SweepInterval: 5 * time.Minute},
		Runner:     RunnerConfig{BatchCap: 3, ToolTimeout: 30 * time.Second},
		Engine:     EngineConfig{MaxSteps: 50},
		Validation: ValidationConfig{MaxPayloadChars: 12000, MaxRefinements: 2},
		NATS:       NATSConfig{Subject: "errand.tasks"},
		Tools:      ToolsConfig{Catalog: "tools.yaml"},
		Input:      InputConfig{MaxSize: 4096},
	}
}

// list keys accept a comma separated string from the environment.
var listKeys = map[string]bool{
	"security.fallback_keys": true,
	"security.pii_keys":      true,
	"http.allowed_origins":   true,
}

// Load reads path (optional) and the environment over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if len(content) > 0 {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps ERRAND_LLM__BASE_URL to llm.base_url.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// IsProduction reports whether raw errors must be hidden from users.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "redis", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if (c.Store.Driver == "sqlite" || c.Store.Driver == "postgres") && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Runner.BatchCap < 1 {
		errs = append(errs, errors.New("runner.batch_cap must be at least 1"))
	}
	if c.Engine.MaxSteps < 1 {
		errs = append(errs, errors.New("engine.max_steps must be at least 1"))
	}
	if c.Input.MaxSize < 1 {
		errs = append(errs, errors.New("input.max_size must be at least 1"))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.max_attempts must be at least 1"))
	}
	if _, _, err := c.Security.Keys(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Keys decodes the encryption key and its fallbacks. Keys are 32 bytes,
// written as 64 hex characters or standard base64. No primary key means
// encryption is off.
func (s SecurityConfig) Keys() (primary []byte, fallbacks [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("security.fallback_keys set without security.encryption_key")
		}
		return nil, nil, nil
	}
	if primary, err = decodeKey(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("security.encryption_key: %w", err)
	}
	for i, raw := range s.FallbackKeys {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("security.fallback_keys[%d]: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	return primary, fallbacks, nil
}

func decodeKey(s string) ([]byte, error) {
	if len(s) == 64 {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("not hex or base64")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}
