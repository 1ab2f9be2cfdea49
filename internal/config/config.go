package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for replybot.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Completion CompletionConfig `yaml:"completion"`
	Image      ImageConfig      `yaml:"image"`
	Speech     SpeechConfig     `yaml:"speech"`
	Triggers   TriggersConfig   `yaml:"triggers"`
	Reply      ReplyConfig      `yaml:"reply"`
	Journal    JournalConfig    `yaml:"journal"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `yaml:"logLevel"`  // debug | info | warn | error
	LogFormat             string `yaml:"logFormat"` // text | json
	MaxConcurrentMessages int    `yaml:"maxConcurrentMessages"`

	// RatePerMinute caps how many turns start per minute across all chats.
	// Zero disables the limit.
	RatePerMinute float64 `yaml:"ratePerMinute"`
	RateBurst     int     `yaml:"rateBurst"`
}

type TelegramConfig struct {
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allowFrom"` // user IDs; empty = allow all
	ParseMode string   `yaml:"parseMode"`
}

// CompletionConfig configures the OpenAI-compatible chat completion backend.
type CompletionConfig struct {
	APIKey            string  `yaml:"apiKey"`
	APIBase           string  `yaml:"apiBase"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"maxTokens"`
	Temperature       float64 `yaml:"temperature"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	SupportsWebSearch bool    `yaml:"supportsWebSearch"`
}

func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ImageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"apiKey"`
	Endpoint string `yaml:"endpoint"`
	Size     string `yaml:"size"`
}

type SpeechConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // elevenlabs | openai
	APIKey   string `yaml:"apiKey"`
	APIBase  string `yaml:"apiBase,omitempty"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
}

// TriggersConfig holds the substrings that switch on each intent.
type TriggersConfig struct {
	Image     []string `yaml:"image"`
	WebSearch []string `yaml:"webSearch"`
}

type ReplyConfig struct {
	TypingIndicator  bool `yaml:"typingIndicator"`
	ImageFailureNote bool `yaml:"imageFailureNote"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"dbPath"`
	RetentionDays int    `yaml:"retentionDays"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory (~/.replybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".replybot"
	}
	return filepath.Join(home, ".replybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads the YAML config at path on top of Defaults, then applies
// environment overrides. A missing file is not an error: the bot can run
// from environment variables alone.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg, os.LookupEnv)
	clearUnresolved(cfg)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadRaw reads the file at path over Defaults without environment
// expansion or overrides, so ${VAR} placeholders survive a Save.
func LoadRaw(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(ExpandPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Environment variables read once at startup.
const (
	EnvBotToken       = "BOT_TOKEN"
	EnvCompletionKey  = "DEEPSEEK_API_KEY"
	EnvImageKey       = "FAL_API_KEY"
	EnvSpeechKey      = "ELEVENLABS_API_KEY"
	EnvLogLevel       = "REPLYBOT_LOG_LEVEL"
	EnvTelegramAllow  = "TELEGRAM_ALLOW_FROM"
	EnvCompletionBase = "COMPLETION_API_BASE"
)

// ApplyEnv overrides credentials and a few operational settings from the
// environment. Unset or empty variables leave the file value in place.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvBotToken, &cfg.Telegram.Token)
	set(EnvCompletionKey, &cfg.Completion.APIKey)
	set(EnvImageKey, &cfg.Image.APIKey)
	set(EnvSpeechKey, &cfg.Speech.APIKey)
	set(EnvLogLevel, &cfg.General.LogLevel)
	set(EnvCompletionBase, &cfg.Completion.APIBase)

	if v, ok := lookup(EnvTelegramAllow); ok && strings.TrimSpace(v) != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Telegram.AllowFrom = ids
	}
}

// clearUnresolved blanks secrets that are still a literal ${VAR}
// placeholder, so an unset variable reads as a missing credential.
func clearUnresolved(cfg *Config) {
	for _, s := range []*string{
		&cfg.Telegram.Token,
		&cfg.Completion.APIKey,
		&cfg.Image.APIKey,
		&cfg.Speech.APIKey,
	} {
		if envVarPattern.MatchString(*s) && strings.TrimSpace(envVarPattern.ReplaceAllString(*s, "")) == "" {
			*s = ""
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Credentials are not
// required here: a missing completion key is reported per message.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.RatePerMinute < 0 || cfg.General.RateBurst < 0 {
		errs = append(errs, "general.ratePerMinute and general.rateBurst must be >= 0")
	}

	if cfg.Completion.MaxTokens < 1000 || cfg.Completion.MaxTokens > 2000 {
		errs = append(errs, "completion.maxTokens must be between 1000 and 2000")
	}
	// The completion client treats 0 as unset.
	if cfg.Completion.Temperature <= 0 || cfg.Completion.Temperature > 2 {
		errs = append(errs, "completion.temperature must be greater than 0 and at most 2")
	}
	if cfg.Completion.TimeoutSeconds < 1 || cfg.Completion.TimeoutSeconds > 30 {
		errs = append(errs, "completion.timeoutSeconds must be between 1 and 30")
	}
	if cfg.Completion.APIBase == "" {
		errs = append(errs, "completion.apiBase is required")
	}

	switch cfg.Speech.Provider {
	case "elevenlabs", "openai":
	default:
		errs = append(errs, "speech.provider must be one of: elevenlabs, openai")
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.DBPath == "" {
			errs = append(errs, "journal.dbPath is required when the journal is enabled")
		}
		if cfg.Journal.RetentionDays < 1 {
			errs = append(errs, "journal.retentionDays must be >= 1")
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
