// Package config stores ssoctl contexts: named server endpoints with the
// tokens of the session opened against each of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName        = "ssoctl"
	ConfigFileName = "config"
	ConfigFileType = "yaml"
)

// ErrNoContext is returned when no context is selected.
var ErrNoContext = errors.New("no current context; run 'ssoctl config set-context <name> --server <url>'")

// Context is a single server endpoint and the session held against it.
type Context struct {
	ServerEndpoint string `mapstructure:"server_endpoint" yaml:"server_endpoint"`
	AccessToken    string `mapstructure:"access_token,omitempty" yaml:"access_token,omitempty"`
	RefreshToken   string `mapstructure:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
}

// CLIConfig holds every context and the selected one.
type CLIConfig struct {
	CurrentContext string              `mapstructure:"current_context" yaml:"current_context"`
	Contexts       map[string]*Context `mapstructure:"contexts" yaml:"contexts"`
}

// Store loads and saves the CLI configuration file.
type Store struct {
	v    *viper.Viper
	path string
	cfg  *CLIConfig
}

// DefaultPath returns $HOME/.ssoctl/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, "."+AppName, ConfigFileName+"."+ConfigFileType), nil
}

// Load reads path. A missing file yields an empty configuration that is
// created on the first Save.
func Load(path string) (*Store, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(ConfigFileType)
	v.SetEnvPrefix(AppName)
	v.AutomaticEnv()

	s := &Store{v: v, path: path, cfg: &CLIConfig{Contexts: make(map[string]*Context)}}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file %s: %w", path, err)
			}
		}

		return s, nil
	}

	if err := v.Unmarshal(s.cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if s.cfg.Contexts == nil {
		s.cfg.Contexts = make(map[string]*Context)
	}

	return s, nil
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Config returns the loaded configuration for inspection.
func (s *Store) Config() *CLIConfig {
	return s.cfg
}

// SetContext creates or updates a context and selects it.
func (s *Store) SetContext(name, server string) {
	ctx, ok := s.cfg.Contexts[name]
	if !ok {
		ctx = &Context{}
		s.cfg.Contexts[name] = ctx
	}
	if server != "" && server != ctx.ServerEndpoint {
		ctx.ServerEndpoint = server
		// Tokens belong to the old server.
		ctx.AccessToken, ctx.RefreshToken = "", ""
	}
	s.cfg.CurrentContext = name
}

// UseContext selects an existing context.
func (s *Store) UseContext(name string) error {
	if _, ok := s.cfg.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	s.cfg.CurrentContext = name

	return nil
}

// Current returns a copy of the selected context. The SSOCTL_SERVER
// environment variable overrides its endpoint.
func (s *Store) Current() (Context, error) {
	ctx, ok := s.cfg.Contexts[s.cfg.CurrentContext]
	if !ok {
		return Context{}, ErrNoContext
	}

	c := *ctx
	if server := s.v.GetString("server"); server != "" {
		c.ServerEndpoint = server
	}

	return c, nil
}

// SetTokens stores the session tokens of the selected context. Empty values
// clear them.
func (s *Store) SetTokens(accessToken, refreshToken string) error {
	ctx, ok := s.cfg.Contexts[s.cfg.CurrentContext]
	if !ok {
		return ErrNoContext
	}
	ctx.AccessToken, ctx.RefreshToken = accessToken, refreshToken

	return nil
}

// Save writes the configuration readable by the owner only.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	contexts := make(map[string]any, len(s.cfg.Contexts))
	for name, c := range s.cfg.Contexts {
		contexts[name] = map[string]any{
			"server_endpoint": c.ServerEndpoint,
			"access_token":    c.AccessToken,
			"refresh_token":   c.RefreshToken,
		}
	}
	s.v.Set("current_context", s.cfg.CurrentContext)
	s.v.Set("contexts", contexts)

	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", s.path, err)
	}

	return os.Chmod(s.path, 0o600)
}
