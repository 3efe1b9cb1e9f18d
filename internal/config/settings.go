package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/vatflow/internal/common"
)

// EnvPrefix is the prefix for environment overrides (VATFLOW_LLM_API_KEY, ...).
const EnvPrefix = "VATFLOW"

// Settings holds the resolved application configuration.
type Settings struct {
	Database DatabaseSettings
	Rules    FileSettings
	Prompts  FileSettings
	Logging  LoggingSettings
	Signals  SignalSettings
	LLM      LLMSettings
	Pricing  PricingSettings
	DataDir  string
}

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string
}

// FileSettings points at an optional document that overrides a built-in default.
type FileSettings struct {
	Path string
}

// LoggingSettings configures slog and the model call log.
type LoggingSettings struct {
	Level  string
	Format string
	Dir    string
}

// SignalSettings configures checklist signal detection.
type SignalSettings struct {
	CashReceiptScope string
}

// LLMSettings configures the model gateway.
type LLMSettings struct {
	APIKey            string
	BaseURL           string
	Provider          string
	ModelClassify     string
	ModelGeneral      string
	DemoPrefix        string
	RetryDelay        time.Duration
	Timeout           time.Duration
	Temperature       float64
	MaxTokens         int
	Retries           int
	RequestsPerMinute int
}

// PricingSettings holds per-1000-token prices used for cost estimates.
type PricingSettings struct {
	InPer1K  float64
	OutPer1K float64
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "$HOME/.local/share/vatflow/vatflow.db")
	v.SetDefault("rules.path", "")
	v.SetDefault("prompts.path", "")
	v.SetDefault("data_dir", "./data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.dir", "./logs")

	v.SetDefault("signals.cash_receipt_scope", "corpus")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model_classify", "gpt-4o-mini")
	v.SetDefault("llm.model_general", "gpt-4.1-mini")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.retries", 2)
	v.SetDefault("llm.retry_delay", 400*time.Millisecond)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.demo_prefix", "sk-proj-demo")
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("pricing.in_per_1k", 0.0005)
	v.SetDefault("pricing.out_per_1k", 0.0015)
}

// BindEnv makes every key overridable through VATFLOW_ environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load resolves settings from v. The API key falls back to OPENAI_API_KEY
// when no VATFLOW value is configured. Paths are expanded.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Database: DatabaseSettings{Path: ExpandPath(v.GetString("database.path"))},
		Rules:    FileSettings{Path: ExpandPath(v.GetString("rules.path"))},
		Prompts:  FileSettings{Path: ExpandPath(v.GetString("prompts.path"))},
		DataDir:  ExpandPath(v.GetString("data_dir")),
		Logging: LoggingSettings{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
			Dir:    ExpandPath(v.GetString("logging.dir")),
		},
		Signals: SignalSettings{CashReceiptScope: v.GetString("signals.cash_receipt_scope")},
		LLM: LLMSettings{
			APIKey:            v.GetString("llm.api_key"),
			BaseURL:           v.GetString("llm.base_url"),
			Provider:          strings.ToLower(v.GetString("llm.provider")),
			ModelClassify:     v.GetString("llm.model_classify"),
			ModelGeneral:      v.GetString("llm.model_general"),
			DemoPrefix:        v.GetString("llm.demo_prefix"),
			RetryDelay:        v.GetDuration("llm.retry_delay"),
			Timeout:           v.GetDuration("llm.timeout"),
			Temperature:       v.GetFloat64("llm.temperature"),
			MaxTokens:         v.GetInt("llm.max_tokens"),
			Retries:           v.GetInt("llm.retries"),
			RequestsPerMinute: v.GetInt("llm.requests_per_minute"),
		},
		Pricing: PricingSettings{
			InPer1K:  v.GetFloat64("pricing.in_per_1k"),
			OutPer1K: v.GetFloat64("pricing.out_per_1k"),
		},
	}

	if s.LLM.APIKey == "" {
		s.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges that viper cannot express.
func (s *Settings) Validate() error {
	if s.Database.Path == "" {
		return fmt.Errorf("%w: database.path must not be empty", common.ErrInvalidConfig)
	}
	if s.LLM.Retries < 0 {
		return fmt.Errorf("%w: llm.retries must not be negative, got %d", common.ErrInvalidConfig, s.LLM.Retries)
	}
	if s.LLM.MaxTokens < 0 {
		return fmt.Errorf("%w: llm.max_tokens must not be negative, got %d", common.ErrInvalidConfig, s.LLM.MaxTokens)
	}
	if s.Pricing.InPer1K < 0 || s.Pricing.OutPer1K < 0 {
		return fmt.Errorf("%w: pricing values must not be negative", common.ErrInvalidConfig)
	}
	switch s.Signals.CashReceiptScope {
	case "corpus", "period":
	default:
		return fmt.Errorf("%w: signals.cash_receipt_scope must be corpus or period, got %q", common.ErrInvalidConfig, s.Signals.CashReceiptScope)
	}
	return nil
}
