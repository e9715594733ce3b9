// Package config loads and saves the user's triage settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// ErrInvalid is returned when the config file cannot be parsed.
var ErrInvalid = errors.New("invalid config file")

// Config is the persistent application configuration
type Config struct {
	// DataDir holds the cache, logs and event stream. Defaults to ~/.triage.
	DataDir string `json:"data_dir,omitempty"`

	// KeysFile is an optional dotenv file of API keys, e.g. a shared keys.sh.
	KeysFile string `json:"keys_file,omitempty"`

	// Mail accounts and provider settings
	Accounts []AccountConfig `json:"accounts"`
	Mail     MailConfig      `json:"mail"`

	// AI Models
	Models ModelConfig `json:"models"`

	// Analysis pipeline settings
	Analysis AnalysisConfig `json:"analysis"`

	// External task tracker
	Tracker TrackerConfig `json:"tracker"`

	// UI Preferences
	UI UIConfig `json:"ui"`
}

// AccountConfig names a mail account and its stored OAuth token.
type AccountConfig struct {
	Name      string `json:"name"`
	TokenFile string `json:"token_file"`
}

// MailConfig holds provider-wide mail settings
type MailConfig struct {
	CredentialsFile string `json:"credentials_file"`
	Query           string `json:"query,omitempty"`
	MaxResults      int    `json:"max_results"`
}

// ModelConfig holds metered API settings
type ModelConfig struct {
	Claude ModelSettings `json:"claude"`
	OpenAI ModelSettings `json:"openai"`
	Gemini ModelSettings `json:"gemini"`
}

// ModelSettings for a single AI provider
type ModelSettings struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"` // Specific model to use
	Priority int    `json:"priority"`        // Lower = tried first among metered APIs
}

// AnalysisConfig holds AI analysis preferences
type AnalysisConfig struct {
	PreferLocal   bool      `json:"prefer_local"` // Try the local CLI before metered APIs
	BatchSize     int       `json:"batch_size"`
	StalenessDays int       `json:"staleness_days"`
	CLI           CLIConfig `json:"cli"`
}

// CLIConfig describes the local reasoning tool.
type CLIConfig struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Retries        int      `json:"retries"`
	BackoffSeconds int      `json:"backoff_seconds"`
}

// TrackerConfig selects the reminders list used as the task tracker.
type TrackerConfig struct {
	Enabled        bool   `json:"enabled"`
	Command        string `json:"command"`
	List           string `json:"list"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// UIConfig holds UI preferences
type UIConfig struct {
	ShowBacklog bool `json:"show_backlog"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Accounts: []AccountConfig{},
		Mail: MailConfig{
			CredentialsFile: filepath.Join(DefaultDataDir(), "credentials.json"),
			MaxResults:      200,
		},
		Models: ModelConfig{
			Claude: ModelSettings{
				Enabled:  true,
				Priority: 1,
				Model:    "claude-sonnet-4-5-20250929",
			},
			OpenAI: ModelSettings{
				Enabled:  false,
				Priority: 2,
				Model:    "gpt-4o",
			},
			Gemini: ModelSettings{
				Enabled:  false,
				Priority: 3,
				Model:    "gemini-2.5-flash",
			},
		},
		Analysis: AnalysisConfig{
			PreferLocal:   true,
			BatchSize:     50,
			StalenessDays: 30,
			CLI: CLIConfig{
				Command:        "claude",
				Args:           []string{"-p", "--output-format", "json"},
				TimeoutSeconds: 180,
				Retries:        2,
				BackoffSeconds: 2,
			},
		},
		Tracker: TrackerConfig{
			Enabled:        true,
			Command:        "reminders",
			List:           "Triage",
			TimeoutSeconds: 15,
		},
	}
}

// DefaultDataDir is $TRIAGE_DATA_DIR, or ~/.triage.
func DefaultDataDir() string {
	if dir := os.Getenv("TRIAGE_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".triage")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}

// Load reads config from path (ConfigPath if empty), or returns defaults
// when the file does not exist. Comments and trailing commas are allowed.
// A .env file in the working directory is loaded first, and API keys
// missing from the file are filled from the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	// Missing .env is normal.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
		}
		if err := json.Unmarshal(standardized, cfg); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
		}
	}

	if cfg.KeysFile != "" {
		cfg.KeysFile = expandHome(cfg.KeysFile)
		if err := cfg.LoadKeysFromFile(cfg.KeysFile); err != nil {
			return nil, fmt.Errorf("load keys file: %w", err)
		}
	}
	cfg.AutoPopulateFromEnv()
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Mail.CredentialsFile = expandHome(cfg.Mail.CredentialsFile)
	for i := range cfg.Accounts {
		cfg.Accounts[i].TokenFile = expandHome(cfg.Accounts[i].TokenFile)
	}
	return cfg, nil
}

// Save writes config to path (ConfigPath if empty) atomically.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	// Restrictive permissions for API keys
	return os.Chmod(path, 0o600)
}

// AutoPopulateFromEnv fills in API keys from environment variables when
// the config does not already carry one.
func (c *Config) AutoPopulateFromEnv() {
	c.applyKeys(func(key string) string { return os.Getenv(key) })
}

// LoadKeysFromFile loads keys from a dotenv-style file (KEY=value lines,
// optional "export" prefix).
func (c *Config) LoadKeysFromFile(path string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	c.applyKeys(func(key string) string { return env[key] })
	return nil
}

func (c *Config) applyKeys(lookup func(string) string) {
	fill := func(s *ModelSettings, enable bool, keys ...string) {
		if s.APIKey != "" {
			return
		}
		for _, k := range keys {
			if v := lookup(k); v != "" {
				s.APIKey = v
				if enable {
					s.Enabled = true
				}
				return
			}
		}
	}
	fill(&c.Models.Claude, true, "ANTHROPIC_API_KEY", "CLAUDE_API_KEY")
	fill(&c.Models.OpenAI, false, "OPENAI_API_KEY")
	fill(&c.Models.Gemini, false, "GEMINI_API_KEY", "GOOGLE_API_KEY")
}

// GetEnabledModels returns models that are enabled and have API keys
func (c *Config) GetEnabledModels() []string {
	var models []string
	if c.Models.Claude.Enabled && c.Models.Claude.APIKey != "" {
		models = append(models, "claude")
	}
	if c.Models.OpenAI.Enabled && c.Models.OpenAI.APIKey != "" {
		models = append(models, "openai")
	}
	if c.Models.Gemini.Enabled && c.Models.Gemini.APIKey != "" {
		models = append(models, "gemini")
	}
	return models
}

// Staleness is the backlog cutoff as a duration.
func (a AnalysisConfig) Staleness() time.Duration {
	if a.StalenessDays <= 0 {
		return 0
	}
	return time.Duration(a.StalenessDays) * 24 * time.Hour
}

// CachePath is the analysis cache database.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// EventsPath is the JSONL event stream.
func (c *Config) EventsPath() string {
	return filepath.Join(c.DataDir, "events.jsonl")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
