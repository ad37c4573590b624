// Package config loads lsc settings from ~/.lsc/config.toml and LSC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "LSC"
	DirName       = ".lsc"
	FileName      = "config.toml"
	configFileEnv = "LSC_CONFIG"
)

const (
	DriverTOML     = "toml"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"

	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Billing BillingConfig `mapstructure:"billing"`
	Log     logger.Config `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type StoreConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=toml redis postgres"`
	Path         string `mapstructure:"path" validate:"required_if=Driver toml"`
	RedisURL     string `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	PostgresDSN  string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
	EnforceQuota bool   `mapstructure:"enforce_quota"`
}

type AuthConfig struct {
	Provider       string        `mapstructure:"provider" validate:"oneof=local oidc"`
	Issuer         string        `mapstructure:"issuer" validate:"required_if=Provider oidc"`
	ClientID       string        `mapstructure:"client_id" validate:"required_if=Provider oidc"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Listen         string        `mapstructure:"listen"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	CredentialsDir string        `mapstructure:"credentials_dir" validate:"required"`
}

type BillingConfig struct {
	Timezone string `mapstructure:"timezone" validate:"required"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Dir is the lsc home: ~/.lsc.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

func setDefaults(v *viper.Viper, dir string) {
	logDefaults := logger.DefaultConfig()

	v.SetDefault("store.driver", DriverTOML)
	v.SetDefault("store.path", filepath.Join(dir, "accounts.toml"))
	v.SetDefault("store.redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.enforce_quota", false)
	v.SetDefault("auth.provider", ProviderLocal)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.listen", "127.0.0.1:8765")
	v.SetDefault("auth.timeout", 5*time.Minute)
	v.SetDefault("auth.credentials_dir", filepath.Join(dir, "credentials"))
	v.SetDefault("billing.timezone", domain.ReferenceTimeZone)
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.output", logDefaults.Output)
	v.SetDefault("metrics.addr", "")
}

// Load applies defaults, the config file and the environment to v, in increasing precedence.
// A missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}
	setDefaults(v, dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := filepath.Join(dir, FileName)
	if override := strings.TrimSpace(os.Getenv(configFileEnv)); override != "" {
		configFile = override
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config %q: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Auth.CredentialsDir = expandHome(cfg.Auth.CredentialsDir)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(keyName)

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("invalid config: %w", err)
		}

		problems := make([]string, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			problems = append(problems, describe(fieldErr))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	if _, err := domain.LoadReferenceLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("invalid config: billing.timezone: %w", err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: log.level: %w", err)
	}
	return nil
}

func describe(fieldErr validator.FieldError) string {
	key := strings.TrimPrefix(fieldErr.Namespace(), "Config.")
	switch fieldErr.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of %s (got %q)", key, fieldErr.Param(), fieldErr.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", key)
	default:
		return fmt.Sprintf("%s is invalid (%s)", key, fieldErr.Tag())
	}
}

func keyName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
