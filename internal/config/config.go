package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Database   Database   `mapstructure:"database"`
	Clustering Clustering `mapstructure:"clustering"`
	Enrichment Enrichment `mapstructure:"enrichment"`
	Feeds      Feeds      `mapstructure:"feeds"`
	AI         AI         `mapstructure:"ai"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// Database holds Postgres connection settings
type Database struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

// Clustering holds the story clustering parameters
type Clustering struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	WindowHours         int     `mapstructure:"window_hours"`
	ExpiryDays          int     `mapstructure:"expiry_days"`
}

// Enrichment holds the orchestrator policy
type Enrichment struct {
	MinArticles             int      `mapstructure:"min_articles"`
	MinSources              int      `mapstructure:"min_sources"`
	SummaryThreshold        float64  `mapstructure:"summary_threshold"`         // 0..100
	TranslationThreshold    float64  `mapstructure:"translation_threshold"`     // 0..100
	ImageRelevanceThreshold float64  `mapstructure:"image_relevance_threshold"` // 0..100
	MaxQualityRetries       int      `mapstructure:"max_quality_retries"`
	MinFieldLength          int      `mapstructure:"min_field_length"`
	Languages               []string `mapstructure:"languages"`
	OfficialDomains         []string `mapstructure:"official_domains"`
	OfficialWeight          float64  `mapstructure:"official_weight"`
	RecencyHalfLife         string   `mapstructure:"recency_half_life"`
	ClusterWorkers          int      `mapstructure:"cluster_workers"`
	TaskTimeout             string   `mapstructure:"task_timeout"`
	TaskMaxRetries          int      `mapstructure:"task_max_retries"`
	BatchLimit              int      `mapstructure:"batch_limit"`
}

// Feeds holds feed fetching configuration
type Feeds struct {
	Workers         int      `mapstructure:"workers"`
	Timeout         string   `mapstructure:"timeout"`
	UserAgent       string   `mapstructure:"user_agent"`
	RetryAttempts   int      `mapstructure:"retry_attempts"`
	RetryBackoff    string   `mapstructure:"retry_backoff"`
	InsertBatchSize int      `mapstructure:"insert_batch_size"`
	Sources         []Source `mapstructure:"sources"`
}

// Source is one configured news feed
type Source struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	Domain   string `mapstructure:"domain"`
	Official bool   `mapstructure:"official"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Timeout           string  `mapstructure:"timeout"`
	Temperature       float32 `mapstructure:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	RetryAttempts     int     `mapstructure:"retry_attempts"`
}

// Pipeline holds run scheduling configuration
type Pipeline struct {
	MinRunInterval string `mapstructure:"min_run_interval"`
	LedgerPath     string `mapstructure:"ledger_path"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads configuration from file, environment and defaults
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsroom")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".newsroom")

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("clustering.similarity_threshold", 0.4)
	viper.SetDefault("clustering.window_hours", 72)
	viper.SetDefault("clustering.expiry_days", 30)

	viper.SetDefault("enrichment.min_articles", 1)
	viper.SetDefault("enrichment.min_sources", 1)
	viper.SetDefault("enrichment.summary_threshold", 70)
	viper.SetDefault("enrichment.translation_threshold", 70)
	viper.SetDefault("enrichment.image_relevance_threshold", 60)
	viper.SetDefault("enrichment.max_quality_retries", 2)
	viper.SetDefault("enrichment.min_field_length", 20)
	viper.SetDefault("enrichment.languages", []string{"en", "si", "ta"})
	viper.SetDefault("enrichment.official_domains", []string{"gov.lk", "pmdnews.lk", "news.lk", "dgi.gov.lk"})
	viper.SetDefault("enrichment.official_weight", 2.0)
	viper.SetDefault("enrichment.recency_half_life", "24h")
	viper.SetDefault("enrichment.cluster_workers", 1)
	viper.SetDefault("enrichment.task_timeout", "60s")
	viper.SetDefault("enrichment.task_max_retries", 1)
	viper.SetDefault("enrichment.batch_limit", 50)

	viper.SetDefault("feeds.workers", 5)
	viper.SetDefault("feeds.timeout", "20s")
	viper.SetDefault("feeds.user_agent", "LankaNewsRoom/1.0")
	viper.SetDefault("feeds.retry_attempts", 3)
	viper.SetDefault("feeds.retry_backoff", "2s")
	viper.SetDefault("feeds.insert_batch_size", 50)

	viper.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("ai.gemini.timeout", "45s")
	viper.SetDefault("ai.gemini.temperature", 0.3)
	viper.SetDefault("ai.gemini.requests_per_minute", 30)
	viper.SetDefault("ai.gemini.retry_attempts", 3)

	viper.SetDefault("pipeline.min_run_interval", "15m")
	viper.SetDefault("pipeline.ledger_path", ".newsroom/runs.db")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"POSTGRES_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"NEWSROOM_DEBUG",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Pipeline.LedgerPath != "" {
		config.Pipeline.LedgerPath = expandPath(config.Pipeline.LedgerPath)
	}

	durations := map[string]string{
		"database.conn_max_lifetime":   config.Database.ConnMaxLifetime,
		"enrichment.recency_half_life": config.Enrichment.RecencyHalfLife,
		"enrichment.task_timeout":      config.Enrichment.TaskTimeout,
		"feeds.timeout":                config.Feeds.Timeout,
		"feeds.retry_backoff":          config.Feeds.RetryBackoff,
		"ai.gemini.timeout":            config.AI.Gemini.Timeout,
		"pipeline.min_run_interval":    config.Pipeline.MinRunInterval,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	for i := range config.Feeds.Sources {
		src := &config.Feeds.Sources[i]
		if src.ID == "" {
			src.ID = src.Name
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Validate checks the settings a full pipeline run needs. It is not called by
// Load so that commands such as migrate can run with partial configuration.
func (c *Config) Validate() error {
	var errors []string

	if !isValidAPIKey(c.AI.Gemini.APIKey) {
		errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.")
	}
	if c.Database.URL == "" {
		errors = append(errors, "Database URL is required. Set DATABASE_URL environment variable or database.url in config file.")
	}
	if c.Clustering.SimilarityThreshold <= 0 || c.Clustering.SimilarityThreshold > 1 {
		errors = append(errors, fmt.Sprintf("clustering.similarity_threshold must be in (0,1], got %v", c.Clustering.SimilarityThreshold))
	}
	if c.Enrichment.MaxQualityRetries < 0 {
		errors = append(errors, "enrichment.max_quality_retries must not be negative")
	}
	for _, lang := range c.Enrichment.Languages {
		switch lang {
		case "en", "si", "ta":
		default:
			errors = append(errors, fmt.Sprintf("Unsupported language: %s. Supported: en, si, ta", lang))
		}
	}
	for _, src := range c.Feeds.Sources {
		if src.URL == "" {
			errors = append(errors, fmt.Sprintf("feed source %q has no url", src.ID))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Duration parses value, returning def when it is empty or invalid.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// Window returns the active clustering window.
func (c Clustering) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// Expiry returns how long a new cluster stays matchable.
func (c Clustering) Expiry() time.Duration {
	return time.Duration(c.ExpiryDays) * 24 * time.Hour
}

// Convenience getters for commonly used configuration values
func GetDatabase() Database { return Get().Database }
func GetFeeds() Feeds       { return Get().Feeds }
func GetPipeline() Pipeline { return Get().Pipeline }
func IsDebugMode() bool     { return Get().App.Debug }

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
