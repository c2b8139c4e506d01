package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Tickers    Tickers    `yaml:"tickers"`
	Search     Search     `yaml:"search"`
	Fetch      Fetch      `yaml:"fetch"`
	Extraction Extraction `yaml:"extraction"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Tickers struct {
	Strategy string `yaml:"strategy"` // auto, split, interpret
}

type Search struct {
	Engine        string        `yaml:"engine"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	QueryTemplate string        `yaml:"query_template"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Fetch struct {
	Mode      string        `yaml:"mode"` // plain, rendered, auto
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Render    Render        `yaml:"render"`
}

type Render struct {
	Headless     bool          `yaml:"headless"`
	Timeout      time.Duration `yaml:"timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Settle       time.Duration `yaml:"settle"`
	ScrollSettle time.Duration `yaml:"scroll_settle"`
}

type Extraction struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	OllamaURL     string        `yaml:"ollama_url"`
	MaxTokens     int           `yaml:"max_tokens"`
	Content       string        `yaml:"content"` // html, markdown, text
	MaxInputChars int           `yaml:"max_input_chars"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Server struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Logging struct {
	Level string `yaml:"level"`
}

var (
	defaultModels = map[string]string{
		"openai":    "gpt-4o",
		"ollama":    "qwen2.5:7b",
		"gemini":    "gemini-2.0-flash",
		"anthropic": "claude-sonnet-4-5",
	}
	defaultKeyEnvs = map[string]string{
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
)

// ModelName returns the configured model or the provider's default.
func (e Extraction) ModelName() string {
	if e.Model != "" {
		return e.Model
	}
	return defaultModels[e.provider()]
}

// KeyEnv returns the configured API key variable or the provider's default.
func (e Extraction) KeyEnv() string {
	if e.APIKeyEnv != "" {
		return e.APIKeyEnv
	}
	return defaultKeyEnvs[e.provider()]
}

func (e Extraction) provider() string {
	p := strings.ToLower(e.Provider)
	if p == "claude" {
		return "anthropic"
	}
	return p
}

// ConfigDir returns the XDG config directory for irevents.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "irevents")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/irevents/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'irevents init' to create a default config",
		xdgConfig,
	)
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are named. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Tickers: Tickers{Strategy: "auto"},
		Search: Search{
			Engine:        "google",
			APIKeyEnv:     "SERP_API_KEY",
			QueryTemplate: "%s investor relations events",
			Timeout:       30 * time.Second,
		},
		Fetch: Fetch{
			Mode:    "plain",
			Timeout: 30 * time.Second,
			Render: Render{
				Headless:     true,
				Timeout:      90 * time.Second,
				IdleTimeout:  30 * time.Second,
				Settle:       5 * time.Second,
				ScrollSettle: 2 * time.Second,
			},
		},
		Extraction: Extraction{
			Provider:  "openai",
			OllamaURL: "http://localhost:11434",
			MaxTokens: 4096,
			Content:   "html",
			Timeout:   180 * time.Second,
		},
		Server:  Server{Port: 8000, RequestTimeout: 300 * time.Second},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Tickers.Strategy) {
	case "auto", "split", "interpret":
	default:
		return fmt.Errorf("tickers.strategy: unknown value %q", c.Tickers.Strategy)
	}
	switch strings.ToLower(c.Fetch.Mode) {
	case "plain", "rendered", "auto":
	default:
		return fmt.Errorf("fetch.mode: unknown value %q", c.Fetch.Mode)
	}
	switch strings.ToLower(c.Extraction.Content) {
	case "html", "markdown", "text":
	default:
		return fmt.Errorf("extraction.content: unknown value %q", c.Extraction.Content)
	}
	if _, ok := defaultModels[c.Extraction.provider()]; !ok {
		return fmt.Errorf("extraction.provider: unknown value %q", c.Extraction.Provider)
	}
	if !strings.Contains(c.Search.QueryTemplate, "%s") {
		return fmt.Errorf("search.query_template must contain %%s")
	}
	if c.Extraction.MaxInputChars < 0 {
		return fmt.Errorf("extraction.max_input_chars must not be negative")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
