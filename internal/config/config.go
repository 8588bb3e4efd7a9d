// Package config loads runtime settings from an optional config file and the
// environment. Environment variables always win over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"boutique-credit/internal/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Credit   CreditConfig   `mapstructure:"credit"`
	AI       AIConfig       `mapstructure:"ai"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AllowedOrigins  string        `mapstructure:"allowed_origins"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSMaxAge      time.Duration `mapstructure:"cors_max_age"`
}

// Origins splits AllowedOrigins on commas, dropping blanks.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type CreditConfig struct {
	// CapMode is "lenient" (cap compares current debt only) or "strict"
	// (current debt plus the requested amount).
	CapMode        string        `mapstructure:"cap_mode"`
	RelaunchWindow time.Duration `mapstructure:"relaunch_window"`
}

type AIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// env names that do not follow the SECTION_KEY convention.
var envAliases = map[string]string{
	"server.allowed_origins": "ALLOWED_ORIGINS",
	"server.jwt_secret":      "JWT_SECRET",
	"ai.api_key":             "OPENAI_API_KEY",
	"ai.model":               "OPENAI_MODEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.cors_max_age", 10*time.Minute)
	v.SetDefault("database.url", "")
	v.SetDefault("credit.cap_mode", string(core.CapModeLenient))
	v.SetDefault("credit.relaunch_window", core.DefaultRelaunchWindow)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
}

// Load reads .env (if present), then the optional config file at path, then
// the environment. DATABASE_URL maps to database.url, CREDIT_CAP_MODE to
// credit.cap_mode, and so on.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := core.ParseCapMode(c.Credit.CapMode); err != nil {
		return fmt.Errorf("invalid credit.cap_mode: %w", err)
	}
	if c.Credit.RelaunchWindow <= 0 {
		return fmt.Errorf("credit.relaunch_window must be positive, got %s", c.Credit.RelaunchWindow)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("server.token_ttl must be positive, got %s", c.Server.TokenTTL)
	}
	return nil
}

// CapMode returns the parsed credit cap mode. Call after Validate.
func (c *Config) CapMode() core.CapMode {
	mode, _ := core.ParseCapMode(c.Credit.CapMode)
	return mode
}

// RequireDatabase returns an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return nil
}
