package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	DeepSeek  DeepSeekConfig  `yaml:"deepseek" mapstructure:"deepseek"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds primary classifier API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// DeepSeekConfig holds auditor classifier API settings.
type DeepSeekConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig configures stage batching and external-call resilience.
type PipelineConfig struct {
	FlagChunkSize    int     `yaml:"flag_chunk_size" mapstructure:"flag_chunk_size"`
	AuditChunkSize   int     `yaml:"audit_chunk_size" mapstructure:"audit_chunk_size"`
	CallTimeoutSecs  int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	RequestBurst     int     `yaml:"request_burst" mapstructure:"request_burst"`
	EntryTextMaxSize int     `yaml:"entry_text_max_size" mapstructure:"entry_text_max_size"`
}

// ExportConfig configures output artifact generation.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the submission HTTP server.
type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	UploadDir string `yaml:"upload_dir" mapstructure:"upload_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "data")
	v.SetDefault("export.dir", "output")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	// Secrets have no defaults, but viper only unmarshals keys it knows
	// about; registering them empty lets TRIAGE_* env vars bind.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("deepseek.key", "")
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("pipeline.flag_chunk_size", 20)
	v.SetDefault("pipeline.audit_chunk_size", 40)
	v.SetDefault("pipeline.call_timeout_secs", 120)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.requests_per_sec", 2.0)
	v.SetDefault("pipeline.request_burst", 4)
	v.SetDefault("pipeline.entry_text_max_size", 8000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required to run the pipeline are set.
// View and purge commands work without API keys and skip this.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic key is required (TRIAGE_ANTHROPIC_KEY)")
	}
	if c.DeepSeek.Key == "" {
		return eris.New("config: deepseek key is required (TRIAGE_DEEPSEEK_KEY)")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
