package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultDirName is the per-user directory holding config.yaml.
const DefaultDirName = ".mkgraph"

// Provider identifies a supported LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderGemini    Provider = "gemini"
)

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMConfig selects and tunes the extraction backend.
type LLMConfig struct {
	Provider    Provider      `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// MaxAttempts bounds the retry loop around one completion call.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// RatePerSecond throttles outbound completion calls across the run.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// EngineConfig tunes the batch orchestrator.
type EngineConfig struct {
	BatchSize          int           `mapstructure:"batch_size" yaml:"batch_size"`
	ExtractConcurrency int           `mapstructure:"extract_concurrency" yaml:"extract_concurrency"`
	DocumentTimeout    time.Duration `mapstructure:"document_timeout" yaml:"document_timeout"`
}

// StoreConfig locates the durable state.
type StoreConfig struct {
	// OutputDir holds the graph database and exports. The state file lives
	// under it so graph and ledger share one transactional store.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
}

// Config is the full application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
}

// StatePath returns the path of the bbolt state file.
func (c *Config) StatePath() string {
	return filepath.Join(c.Store.OutputDir, c.Store.StateFile)
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mkgraph")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.rate_per_second", 2.0)

	// -- Engine --
	v.SetDefault("engine.batch_size", 5)
	v.SetDefault("engine.extract_concurrency", 4)
	v.SetDefault("engine.document_timeout", "2m")

	// -- Store --
	v.SetDefault("store.output_dir", "knowledge")
	v.SetDefault("store.state_file", "state.db")
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a Config from a viper instance
// that has already read its sources.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment, never the config file.
	v.BindEnv("llm.api_key", "MKGRAPH_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKeyFromProviderEnv(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// apiKeyFromProviderEnv falls back to the provider's conventional variable.
func apiKeyFromProviderEnv(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider %q is not one of [%s %s %s %s]",
			c.LLM.Provider, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini)
	}
	if c.LLM.MaxAttempts <= 0 {
		return fmt.Errorf("llm.max_attempts must be a positive integer")
	}
	if c.LLM.RatePerSecond <= 0 {
		return fmt.Errorf("llm.rate_per_second must be positive")
	}
	if c.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be a positive integer")
	}
	if c.Engine.ExtractConcurrency <= 0 {
		return fmt.Errorf("engine.extract_concurrency must be a positive integer")
	}
	if c.Store.OutputDir == "" {
		return fmt.Errorf("store.output_dir must not be empty")
	}
	if c.Store.StateFile == "" {
		return fmt.Errorf("store.state_file must not be empty")
	}
	return nil
}

// DefaultDir resolves the per-user config directory (~/.mkgraph).
func DefaultDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// DefaultFile resolves the default config file path.
func DefaultFile() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a config file with defaults to the given path,
// creating parent directories. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
