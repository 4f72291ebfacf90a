// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LLM providers a pass can be bound to.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	minPhase1Interval = 15 * time.Minute
	minPhase2Interval = time.Hour
)

var defaultAIMLRepos = []string{
	"ollama/ollama",
	"langchain-ai/langchain",
	"huggingface/transformers",
	"vllm-project/vllm",
	"ggml-org/llama.cpp",
	"pytorch/pytorch",
}

var defaultSWERepos = []string{
	"golang/go",
	"rust-lang/rust",
	"microsoft/vscode",
	"vercel/next.js",
	"kubernetes/kubernetes",
	"denoland/deno",
}

// Config holds all configuration for the application.
type Config struct {
	LogLevel     string   `mapstructure:"LOG_LEVEL"`
	DBURL        string   `mapstructure:"DB_URL"`
	GithubToken  string   `mapstructure:"GITHUB_TOKEN"`
	GithubAPIURL string   `mapstructure:"GITHUB_API_URL"`
	AIMLRepos    []string `mapstructure:"AIML_REPOS"`
	SWERepos     []string `mapstructure:"SWE_REPOS"`
	HTTPAddr     string   `mapstructure:"HTTP_ADDR"`
	CronSecret   string   `mapstructure:"CRON_SECRET"`

	AnthropicAPIKey   string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel    string `mapstructure:"ANTHROPIC_MODEL"`
	OpenAIAPIKey      string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel       string `mapstructure:"OPENAI_MODEL"`
	EnableAIMLClassif bool   `mapstructure:"ENABLE_AIML_CLASSIFICATION"`

	SyncOnStartup     bool          `mapstructure:"SYNC_ON_STARTUP"`
	StartupDelay      time.Duration `mapstructure:"STARTUP_DELAY"`
	Phase1Duration    time.Duration `mapstructure:"PHASE1_DURATION"`
	Phase1Interval    time.Duration `mapstructure:"PHASE1_INTERVAL"`
	Phase2Interval    time.Duration `mapstructure:"PHASE2_INTERVAL"`
	SyncIntervalHours float64       `mapstructure:"SYNC_INTERVAL_HOURS"`

	RepoSyncCooldown   time.Duration `mapstructure:"REPO_SYNC_COOLDOWN"`
	RepoBatchSize      int           `mapstructure:"REPO_BATCH_SIZE"`
	RepoBatchDelay     time.Duration `mapstructure:"REPO_BATCH_DELAY"`
	TrendingPerPage    int           `mapstructure:"TRENDING_PER_PAGE"`
	TrendingQueryDelay time.Duration `mapstructure:"TRENDING_QUERY_DELAY"`

	IssueSyncBatchSize int           `mapstructure:"ISSUE_SYNC_BATCH_SIZE"`
	IssueSyncCooldown  time.Duration `mapstructure:"ISSUE_SYNC_COOLDOWN"`
	IssuePageSize      int           `mapstructure:"ISSUE_PAGE_SIZE"`
	IssueLabels        []string      `mapstructure:"ISSUE_LABELS"`
	IssueRepoDelay     time.Duration `mapstructure:"ISSUE_REPO_DELAY"`

	LLMBatchDelay      time.Duration `mapstructure:"LLM_BATCH_DELAY"`
	InsightsRepoLimit  int           `mapstructure:"INSIGHTS_REPO_LIMIT"`
	InsightsIssueLimit int           `mapstructure:"INSIGHTS_ISSUE_LIMIT"`

	GithubTimeout time.Duration `mapstructure:"GITHUB_TIMEOUT"`
	LLMTimeout    time.Duration `mapstructure:"LLM_TIMEOUT"`

	CacheTTL            time.Duration `mapstructure:"CACHE_TTL"`
	CacheSize           int           `mapstructure:"CACHE_SIZE"`
	HistoryRetention    time.Duration `mapstructure:"HISTORY_RETENTION"`
	MaintenanceInterval time.Duration `mapstructure:"MAINTENANCE_INTERVAL"`

	Passes Passes `mapstructure:"-"`
}

// PassConfig states whether an LLM pass runs and which provider serves it.
type PassConfig struct {
	Enabled  bool
	Provider string
}

// Passes enumerates the LLM passes and their resolved state.
type Passes struct {
	Summary   PassConfig
	AIML      PassConfig
	BuildPlan PassConfig
	Insights  PassConfig
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.Passes = ResolvePasses(&cfg)

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv values reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_URL", "")
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("AIML_REPOS", defaultAIMLRepos)
	v.SetDefault("SWE_REPOS", defaultSWERepos)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CRON_SECRET", "")

	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("ANTHROPIC_MODEL", "claude-haiku-4-5")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("ENABLE_AIML_CLASSIFICATION", false)

	v.SetDefault("SYNC_ON_STARTUP", true)
	v.SetDefault("STARTUP_DELAY", "5s")
	v.SetDefault("PHASE1_DURATION", "48h")
	v.SetDefault("PHASE1_INTERVAL", "2h30m")
	v.SetDefault("PHASE2_INTERVAL", "12h")
	v.SetDefault("SYNC_INTERVAL_HOURS", 0)

	v.SetDefault("REPO_SYNC_COOLDOWN", "0s")
	v.SetDefault("REPO_BATCH_SIZE", 10)
	v.SetDefault("REPO_BATCH_DELAY", "1s")
	v.SetDefault("TRENDING_PER_PAGE", 20)
	v.SetDefault("TRENDING_QUERY_DELAY", "300ms")

	v.SetDefault("ISSUE_SYNC_BATCH_SIZE", 20)
	v.SetDefault("ISSUE_SYNC_COOLDOWN", "12h")
	v.SetDefault("ISSUE_PAGE_SIZE", 100)
	v.SetDefault("ISSUE_LABELS", []string{})
	v.SetDefault("ISSUE_REPO_DELAY", "500ms")

	v.SetDefault("LLM_BATCH_DELAY", "1s")
	v.SetDefault("INSIGHTS_REPO_LIMIT", 5)
	v.SetDefault("INSIGHTS_ISSUE_LIMIT", 40)

	v.SetDefault("GITHUB_TIMEOUT", "30s")
	v.SetDefault("LLM_TIMEOUT", "90s")

	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("CACHE_SIZE", 512)
	v.SetDefault("HISTORY_RETENTION", "2160h")
	v.SetDefault("MAINTENANCE_INTERVAL", "168h")
}

func (c *Config) normalize() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if len(c.AIMLRepos)+len(c.SWERepos) == 0 {
		return errors.New("AIML_REPOS and SWE_REPOS must contain at least one repository")
	}
	if c.IssuePageSize <= 0 || c.IssuePageSize > 100 {
		return fmt.Errorf("ISSUE_PAGE_SIZE must be between 1 and 100, got %d", c.IssuePageSize)
	}
	if c.RepoBatchSize <= 0 {
		return errors.New("REPO_BATCH_SIZE must be positive")
	}

	// The legacy hours setting maps onto the steady-state phase.
	if c.SyncIntervalHours > 0 {
		c.Phase2Interval = time.Duration(c.SyncIntervalHours * float64(time.Hour))
	}
	c.Phase1Interval = max(c.Phase1Interval, minPhase1Interval)
	c.Phase2Interval = max(c.Phase2Interval, minPhase2Interval)

	if c.RepoSyncCooldown <= 0 {
		c.RepoSyncCooldown = c.Phase2Interval - time.Hour
	}
	return nil
}

// ResolvePasses decides once which LLM passes are active.
// Anthropic is preferred when both keys are present.
func ResolvePasses(c *Config) Passes {
	provider := ""
	switch {
	case c.AnthropicAPIKey != "":
		provider = ProviderAnthropic
	case c.OpenAIAPIKey != "":
		provider = ProviderOpenAI
	}
	enabled := provider != ""

	return Passes{
		Summary:   PassConfig{Enabled: enabled, Provider: provider},
		AIML:      PassConfig{Enabled: enabled && c.EnableAIMLClassif, Provider: provider},
		BuildPlan: PassConfig{Enabled: enabled, Provider: provider},
		Insights:  PassConfig{Enabled: enabled, Provider: provider},
	}
}

// APIKey returns the key configured for a provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	}
	return ""
}

// Model returns the model configured for a provider.
func (c *Config) Model(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.AnthropicModel
	case ProviderOpenAI:
		return c.OpenAIModel
	}
	return ""
}
