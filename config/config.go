package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StorageMemory = "memory"
	StorageMongo  = "mongo"

	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

// ProviderConfig configures one upstream identity provider.
type ProviderConfig struct {
	Name         string   `mapstructure:"name"`
	Type         string   `mapstructure:"type"` // google, github or oidc
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"userinfo_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Config holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; every key can be set from the
// environment.
type Config struct {
	Env string `mapstructure:"ENV"`

	HTTPPort        string `mapstructure:"HTTP_PORT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	LogFile         string `mapstructure:"LOG_FILE"`
	AuditLogFile    string `mapstructure:"AUDIT_LOG_FILE"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDBName   string `mapstructure:"MONGO_DB_NAME"`

	StateStore    string `mapstructure:"STATE_STORE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTIssuer         string `mapstructure:"JWT_ISSUER"`
	JWTAudience       string `mapstructure:"JWT_AUDIENCE"`
	JWTKeyID          string `mapstructure:"JWT_KEY_ID"`
	JWTSecretKey      string `mapstructure:"JWT_SECRET_KEY"`
	JWTPrivateKeyFile string `mapstructure:"JWT_PRIVATE_KEY_FILE"`

	AccessTokenTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	SessionMaxLifetime time.Duration `mapstructure:"SESSION_MAX_LIFETIME"`
	SSOStateTTL        time.Duration `mapstructure:"SSO_STATE_TTL"`
	ProviderTimeout    time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	BcryptCost         int           `mapstructure:"BCRYPT_COST"`

	LinkingPolicy       string   `mapstructure:"LINKING_POLICY"`
	DefaultRoles        []string `mapstructure:"DEFAULT_ROLES"`
	AllowedRedirectURIs []string `mapstructure:"ALLOWED_REDIRECT_URIS"`
	SSOCallbackBaseURL  string   `mapstructure:"SSO_CALLBACK_BASE_URL"`

	JanitorSchedule string        `mapstructure:"JANITOR_SCHEDULE"`
	TokenRetention  time.Duration `mapstructure:"TOKEN_RETENTION"`

	Providers []ProviderConfig `mapstructure:"providers"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults. An empty configFile searches the default locations.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/exam-sso/")
		v.AddConfigPath("$HOME/.exam-sso")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// No config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("AUDIT_LOG_FILE", "")
	v.SetDefault("OTEL_SERVICE_NAME", "exam-sso")
	v.SetDefault("TRACING_ENABLED", false)

	v.SetDefault("STORAGE_DRIVER", StorageMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "exam_sso")

	v.SetDefault("STATE_STORE", StateStoreMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ISSUER", "http://localhost:8080")
	v.SetDefault("JWT_AUDIENCE", "exam-api")
	v.SetDefault("JWT_KEY_ID", "")
	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY_FILE", "")

	v.SetDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	v.SetDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	v.SetDefault("SESSION_MAX_LIFETIME", 30*24*time.Hour)
	v.SetDefault("SSO_STATE_TTL", 10*time.Minute)
	v.SetDefault("PROVIDER_TIMEOUT", 10*time.Second)
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("LINKING_POLICY", "require_linking")
	v.SetDefault("DEFAULT_ROLES", []string{"student"})
	v.SetDefault("ALLOWED_REDIRECT_URIS", []string{})
	v.SetDefault("SSO_CALLBACK_BASE_URL", "http://localhost:8080/auth/sso")

	v.SetDefault("JANITOR_SCHEDULE", "@every 1h")
	v.SetDefault("TOKEN_RETENTION", 30*24*time.Hour)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Env {
	case EnvDevelopment, EnvProduction:
	default:
		problems = append(problems, fmt.Sprintf("ENV must be %q or %q", EnvDevelopment, EnvProduction))
	}

	switch c.StorageDriver {
	case StorageMemory:
		if c.Env == EnvProduction {
			problems = append(problems, "STORAGE_DRIVER=memory is not allowed in production")
		}
	case StorageMongo:
		if c.MongoURI == "" || c.MongoDBName == "" {
			problems = append(problems, "MONGO_URI and MONGO_DB_NAME are required for STORAGE_DRIVER=mongo")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.StateStore {
	case StateStoreMemory:
	case StateStoreRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required for STATE_STORE=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STATE_STORE %q", c.StateStore))
	}

	if c.JWTSecretKey != "" && len(c.JWTSecretKey) < 32 {
		problems = append(problems, "JWT_SECRET_KEY must be at least 32 bytes")
	}
	if c.Env == EnvProduction && c.JWTSecretKey == "" && c.JWTPrivateKeyFile == "" {
		problems = append(problems, "JWT_SECRET_KEY or JWT_PRIVATE_KEY_FILE is required in production")
	}

	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":     c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":    c.RefreshTokenTTL,
		"SESSION_MAX_LIFETIME": c.SessionMaxLifetime,
		"SSO_STATE_TTL":        c.SSOStateTTL,
		"PROVIDER_TIMEOUT":     c.ProviderTimeout,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.SessionMaxLifetime < c.RefreshTokenTTL {
		problems = append(problems, "SESSION_MAX_LIFETIME must not be shorter than REFRESH_TOKEN_TTL")
	}

	switch c.LinkingPolicy {
	case "auto_provision", "require_linking":
	default:
		problems = append(problems, fmt.Sprintf("unknown LINKING_POLICY %q", c.LinkingPolicy))
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		switch {
		case p.Name == "":
			problems = append(problems, fmt.Sprintf("providers[%d]: name is required", i))
		case seen[p.Name]:
			problems = append(problems, fmt.Sprintf("providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true

		if p.ClientID == "" {
			problems = append(problems, fmt.Sprintf("providers[%d]: client_id is required", i))
		}

		switch p.Type {
		case "google", "github":
		case "oidc":
			if p.AuthURL == "" || p.TokenURL == "" || p.UserInfoURL == "" {
				problems = append(problems, fmt.Sprintf("providers[%d]: oidc needs auth_url, token_url and userinfo_url", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("providers[%d]: unknown type %q", i, p.Type))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
