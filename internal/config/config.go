// Package config loads loom's TOML configuration and LOOM_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

const (
	defaultProviderName     = "anthropic"
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	defaultAnthropicVersion = "2023-06-01"
	defaultRetryMaxRetries  = 3
	defaultRetryBaseDelay   = "300ms"
	defaultRetryMaxDelay    = "5s"
	defaultMaxTurns         = 24
	defaultTheme            = "dark"
	defaultLocale           = "en-US"
	defaultConfirmTimeout   = "3s"
	defaultCardBreakpoint   = 72
	defaultMaxVisible       = 3
	defaultLogLevel         = "info"
	configRelativePath      = ".config/loom/config.toml"
	sessionRelativePath     = ".local/share/loom/sessions"
	envAnthropicAPIKey      = "ANTHROPIC_API_KEY"
)

// ErrInvalidConfig indicates malformed configuration input.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the application configuration root.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Agent    AgentConfig    `toml:"agent"`
	TUI      TUIConfig      `toml:"tui"`
	ToolUI   ToolUIConfig   `toml:"toolui"`
	Log      LogConfig      `toml:"log"`
	Session  SessionConfig  `toml:"session"`
}

type ProviderConfig struct {
	Default   string                  `toml:"default"`
	Anthropic AnthropicProviderConfig `toml:"anthropic"`
}

type AnthropicProviderConfig struct {
	APIKey  string      `toml:"api_key"`
	Model   string      `toml:"model"`
	BaseURL string      `toml:"base_url"`
	Version string      `toml:"version"`
	Retry   RetryConfig `toml:"retry"`
}

// RetryConfig stores retry policy as config-friendly values.
type RetryConfig struct {
	MaxRetries int    `toml:"max_retries"`
	BaseDelay  string `toml:"base_delay"`
	MaxDelay   string `toml:"max_delay"`
}

// AgentConfig bounds the assistant turn loop.
type AgentConfig struct {
	MaxTurns     int    `toml:"max_turns"`
	SystemPrompt string `toml:"system_prompt"`
}

type TUIConfig struct {
	Theme         string `toml:"theme"`
	ShowInspector bool   `toml:"show_inspector"`
	Hyperlinks    bool   `toml:"hyperlinks"`
}

// ToolUIConfig holds rendering defaults for Tool-UI surfaces.
type ToolUIConfig struct {
	Locale         string `toml:"locale"`
	ConfirmTimeout string `toml:"confirm_timeout"`
	CardBreakpoint int    `toml:"card_breakpoint"`
	MaxVisible     int    `toml:"max_visible"`
}

type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

type SessionConfig struct {
	Dir string `toml:"dir"`
}

// LoadOptions controls config loading behavior.
type LoadOptions struct {
	Path string
}

// AnthropicSettings is a validated Anthropic runtime settings snapshot.
type AnthropicSettings struct {
	APIKey  string
	Model   string
	BaseURL string
	Version string
	Retry   RetrySettings
}

// RetrySettings is the parsed retry policy.
type RetrySettings struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// ToolUISettings is the parsed [toolui] section.
type ToolUISettings struct {
	Locale         string
	ConfirmTimeout time.Duration
	CardBreakpoint int
	MaxVisible     int
}

// Default returns application defaults.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Default: defaultProviderName,
			Anthropic: AnthropicProviderConfig{
				Model:   defaultAnthropicModel,
				Version: defaultAnthropicVersion,
				Retry: RetryConfig{
					MaxRetries: defaultRetryMaxRetries,
					BaseDelay:  defaultRetryBaseDelay,
					MaxDelay:   defaultRetryMaxDelay,
				},
			},
		},
		Agent: AgentConfig{MaxTurns: defaultMaxTurns},
		TUI:   TUIConfig{Theme: defaultTheme, ShowInspector: true, Hyperlinks: true},
		ToolUI: ToolUIConfig{
			Locale:         defaultLocale,
			ConfirmTimeout: defaultConfirmTimeout,
			CardBreakpoint: defaultCardBreakpoint,
			MaxVisible:     defaultMaxVisible,
		},
		Log:     LogConfig{Level: defaultLogLevel},
		Session: SessionConfig{Dir: homePath(sessionRelativePath)},
	}
}

// Load reads the config file then applies environment overrides.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = homePath(configRelativePath)
	}
	if err := mergeConfigFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AnthropicSettings returns validated settings suitable for runtime wiring.
func (c Config) AnthropicSettings() (AnthropicSettings, error) {
	a := c.Provider.Anthropic
	baseDelay, err := parseDuration("provider.anthropic.retry.base_delay", a.Retry.BaseDelay)
	if err != nil {
		return AnthropicSettings{}, err
	}
	maxDelay, err := parseDuration("provider.anthropic.retry.max_delay", a.Retry.MaxDelay)
	if err != nil {
		return AnthropicSettings{}, err
	}
	if a.Retry.MaxRetries < 0 {
		return AnthropicSettings{}, fmt.Errorf("%w: provider.anthropic.retry.max_retries must be >= 0", ErrInvalidConfig)
	}
	return AnthropicSettings{
		APIKey:  strings.TrimSpace(a.APIKey),
		Model:   strings.TrimSpace(a.Model),
		BaseURL: strings.TrimSpace(a.BaseURL),
		Version: strings.TrimSpace(a.Version),
		Retry:   RetrySettings{MaxRetries: a.Retry.MaxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay},
	}, nil
}

// ToolUISettings returns the validated [toolui] section.
func (c Config) ToolUISettings() (ToolUISettings, error) {
	t := c.ToolUI
	locale := strings.TrimSpace(t.Locale)
	if locale == "" {
		locale = defaultLocale
	}
	if _, err := language.Parse(locale); err != nil {
		return ToolUISettings{}, fmt.Errorf("%w: toolui.locale %q: %v", ErrInvalidConfig, locale, err)
	}
	timeout, err := parseDuration("toolui.confirm_timeout", t.ConfirmTimeout)
	if err != nil {
		return ToolUISettings{}, err
	}
	if timeout <= 0 {
		return ToolUISettings{}, fmt.Errorf("%w: toolui.confirm_timeout must be > 0", ErrInvalidConfig)
	}
	if t.CardBreakpoint < 0 {
		return ToolUISettings{}, fmt.Errorf("%w: toolui.card_breakpoint must be >= 0", ErrInvalidConfig)
	}
	if t.MaxVisible < 0 {
		return ToolUISettings{}, fmt.Errorf("%w: toolui.max_visible must be >= 0", ErrInvalidConfig)
	}
	return ToolUISettings{
		Locale:         locale,
		ConfirmTimeout: timeout,
		CardBreakpoint: t.CardBreakpoint,
		MaxVisible:     t.MaxVisible,
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	name string
	set  func(cfg *Config, value string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func setInt(name string, field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, name, err)
		}
		*field(cfg) = parsed
		return nil
	}
}

func setBool(name string, field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, name, err)
		}
		*field(cfg) = parsed
		return nil
	}
}

var envOverrides = []envOverride{
	{"LOOM_PROVIDER_DEFAULT", setString(func(c *Config) *string { return &c.Provider.Default })},
	{"LOOM_ANTHROPIC_MODEL", setString(func(c *Config) *string { return &c.Provider.Anthropic.Model })},
	{"LOOM_ANTHROPIC_BASE_URL", setString(func(c *Config) *string { return &c.Provider.Anthropic.BaseURL })},
	{"LOOM_ANTHROPIC_VERSION", setString(func(c *Config) *string { return &c.Provider.Anthropic.Version })},
	{"LOOM_ANTHROPIC_RETRY_MAX_RETRIES", setInt("LOOM_ANTHROPIC_RETRY_MAX_RETRIES", func(c *Config) *int { return &c.Provider.Anthropic.Retry.MaxRetries })},
	{"LOOM_ANTHROPIC_RETRY_BASE_DELAY", setString(func(c *Config) *string { return &c.Provider.Anthropic.Retry.BaseDelay })},
	{"LOOM_ANTHROPIC_RETRY_MAX_DELAY", setString(func(c *Config) *string { return &c.Provider.Anthropic.Retry.MaxDelay })},
	{"LOOM_AGENT_MAX_TURNS", setInt("LOOM_AGENT_MAX_TURNS", func(c *Config) *int { return &c.Agent.MaxTurns })},
	{"LOOM_TUI_THEME", setString(func(c *Config) *string { return &c.TUI.Theme })},
	{"LOOM_TUI_HYPERLINKS", setBool("LOOM_TUI_HYPERLINKS", func(c *Config) *bool { return &c.TUI.Hyperlinks })},
	{"LOOM_TOOLUI_LOCALE", setString(func(c *Config) *string { return &c.ToolUI.Locale })},
	{"LOOM_TOOLUI_CONFIRM_TIMEOUT", setString(func(c *Config) *string { return &c.ToolUI.ConfirmTimeout })},
	{"LOOM_TOOLUI_CARD_BREAKPOINT", setInt("LOOM_TOOLUI_CARD_BREAKPOINT", func(c *Config) *int { return &c.ToolUI.CardBreakpoint })},
	{"LOOM_LOG_FILE", setString(func(c *Config) *string { return &c.Log.File })},
	{"LOOM_LOG_LEVEL", setString(func(c *Config) *string { return &c.Log.Level })},
	{"LOOM_SESSION_DIR", setString(func(c *Config) *string { return &c.Session.Dir })},
}

func applyEnv(cfg *Config) error {
	// The API key is taken verbatim, even when empty, so it can be cleared.
	if value, ok := os.LookupEnv(envAnthropicAPIKey); ok {
		cfg.Provider.Anthropic.APIKey = value
	}
	for _, o := range envOverrides {
		value, ok := os.LookupEnv(o.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := o.set(cfg, strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return nil
}

var logLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Provider.Default) == "" {
		return fmt.Errorf("%w: provider.default is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Provider.Anthropic.Model) == "" {
		return fmt.Errorf("%w: provider.anthropic.model is required", ErrInvalidConfig)
	}
	if cfg.Agent.MaxTurns <= 0 {
		return fmt.Errorf("%w: agent.max_turns must be > 0", ErrInvalidConfig)
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Log.Level))] {
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, cfg.Log.Level)
	}
	if _, err := cfg.AnthropicSettings(); err != nil {
		return err
	}
	if _, err := cfg.ToolUISettings(); err != nil {
		return err
	}
	return nil
}

func homePath(rel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, rel)
}
