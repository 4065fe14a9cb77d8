package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with GROCERY_CONFIG.
const ConfigPath = "config.yaml"

const (
	defaultIdentityBaseURL      = "https://api.github.com"
	defaultIdentityTimeout      = 5 * time.Second
	defaultAuditTimeout         = 5 * time.Second
	defaultShutdownTimeout      = 15 * time.Second
	defaultDenialAlertWindow    = 10 * time.Minute
	defaultDenialAlertThreshold = 20
)

// FileConfig represents configuration loaded from YAML.
// DenialAlertThreshold is nil until defaults are applied; 0 disables alerts.
type FileConfig struct {
	Port                 string   `yaml:"port"`
	DatabaseURL          string   `yaml:"databaseURL"`
	LogLevel             string   `yaml:"logLevel"`
	LogFormat            string   `yaml:"logFormat"`
	RedisAddr            string   `yaml:"redisAddr"`
	RedisPassword        string   `yaml:"redisPassword"`
	IdentityBaseURL      string   `yaml:"identityBaseURL"`
	IdentityTimeout      string   `yaml:"identityTimeout"`
	TrustedProxyCIDRs    []string `yaml:"trustedProxyCidrs"`
	RateLimitPerMinute   int      `yaml:"rateLimitPerMinute"`
	RateLimitFailOpen    bool     `yaml:"rateLimitFailOpen"`
	DenialAlertThreshold *int     `yaml:"denialAlertThreshold"`
	DenialAlertWindow    string   `yaml:"denialAlertWindow"`
	AuditTimeout         string   `yaml:"auditTimeout"`
	ShutdownTimeout      string   `yaml:"shutdownTimeout"`
}

// Durations holds the parsed duration fields of FileConfig.
type Durations struct {
	IdentityTimeout   time.Duration
	DenialAlertWindow time.Duration
	AuditTimeout      time.Duration
	ShutdownTimeout   time.Duration
}

// LoadDotEnv loads the given env files when present. Earlier files win, and
// variables already set in the process environment are never overwritten.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads config from path (defaults to GROCERY_CONFIG, then config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("GROCERY_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("IDENTITY_BASE_URL"); v != "" {
		cfg.IdentityBaseURL = v
	}
	if v := os.Getenv("IDENTITY_TIMEOUT"); v != "" {
		cfg.IdentityTimeout = v
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("GROCERY_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("GROCERY_RATE_LIMIT_FAIL_OPEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimitFailOpen = b
		}
	}
	if v := os.Getenv("GROCERY_DENIAL_ALERT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DenialAlertThreshold = &n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.IdentityBaseURL) == "" {
		cfg.IdentityBaseURL = defaultIdentityBaseURL
	}
	cfg.IdentityBaseURL = strings.TrimRight(cfg.IdentityBaseURL, "/")
	if cfg.DenialAlertThreshold == nil {
		threshold := defaultDenialAlertThreshold
		cfg.DenialAlertThreshold = &threshold
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting and denial alerts")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	if cfg.DenialAlertThreshold != nil && *cfg.DenialAlertThreshold < 0 {
		return errors.New("config: denialAlertThreshold must be >= 0 (0 disables denial alerts)")
	}
	d, err := ParseDurations(cfg)
	if err != nil {
		return err
	}
	if d.DenialAlertWindow < time.Millisecond {
		return errors.New("config: denialAlertWindow must be at least 1ms")
	}
	return nil
}

// ParseDurations parses the optional duration fields, filling defaults.
func ParseDurations(cfg FileConfig) (Durations, error) {
	var (
		d   Durations
		err error
	)
	if d.IdentityTimeout, err = parseDuration("identityTimeout", cfg.IdentityTimeout, defaultIdentityTimeout); err != nil {
		return d, err
	}
	if d.DenialAlertWindow, err = parseDuration("denialAlertWindow", cfg.DenialAlertWindow, defaultDenialAlertWindow); err != nil {
		return d, err
	}
	if d.AuditTimeout, err = parseDuration("auditTimeout", cfg.AuditTimeout, defaultAuditTimeout); err != nil {
		return d, err
	}
	if d.ShutdownTimeout, err = parseDuration("shutdownTimeout", cfg.ShutdownTimeout, defaultShutdownTimeout); err != nil {
		return d, err
	}
	return d, nil
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", field, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", field)
	}
	return dur, nil
}

// AlertThreshold returns the denial alert threshold, 0 when alerts are off.
func (cfg FileConfig) AlertThreshold() int {
	if cfg.DenialAlertThreshold == nil {
		return defaultDenialAlertThreshold
	}
	return *cfg.DenialAlertThreshold
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
