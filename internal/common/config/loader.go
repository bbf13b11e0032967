package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // environment overlay is optional

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "campaign-orchestrator"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Elasticsearch.KnowledgeIndex == "" {
		cfg.Database.Elasticsearch.KnowledgeIndex = "knowledge-articles"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek-chat"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.LLM.MaxAttempts == 0 {
		cfg.LLM.MaxAttempts = 3
	}
	if cfg.LLM.BackoffBaseMS == 0 {
		cfg.LLM.BackoffBaseMS = 1000
	}
	if cfg.Classification.LowConfidenceThreshold == 0 {
		cfg.Classification.LowConfidenceThreshold = 0.5
	}
	if cfg.Classification.ContextTurns == 0 {
		cfg.Classification.ContextTurns = 5
	}
	if cfg.Validation.PassThreshold == 0 {
		cfg.Validation.PassThreshold = 0.6
	}
	if cfg.Journey.ControlGroupPercent == 0 {
		cfg.Journey.ControlGroupPercent = 15
	}
	if cfg.Journey.DefaultDurationDays == 0 {
		cfg.Journey.DefaultDurationDays = 30
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = 72
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
	for name, def := range defaultAgentConfigs() {
		got, ok := cfg.Agents[name]
		if !ok {
			cfg.Agents[name] = def
			continue
		}
		if got.Temperature == 0 {
			got.Temperature = def.Temperature
		}
		if got.MaxTokens == 0 {
			got.MaxTokens = def.MaxTokens
		}
		if got.TimeoutSeconds == 0 {
			got.TimeoutSeconds = def.TimeoutSeconds
		}
		if got.MaxToolRounds == 0 {
			got.MaxToolRounds = def.MaxToolRounds
		}
		cfg.Agents[name] = got
	}
}

// defaultAgentConfigs carries the per-agent sampling defaults. Journey and
// classification never call tools, so their round cap is zero.
func defaultAgentConfigs() map[string]AgentConfig {
	return map[string]AgentConfig{
		"classification": {Temperature: 0.3, MaxTokens: 256, TimeoutSeconds: 15, MaxToolRounds: 0},
		"research":       {Temperature: 0.7, MaxTokens: 2000, TimeoutSeconds: 60, MaxToolRounds: 5},
		"campaign":       {Temperature: 0.7, MaxTokens: 3000, TimeoutSeconds: 90, MaxToolRounds: 3},
		"audience":       {Temperature: 0.6, MaxTokens: 1500, TimeoutSeconds: 45, MaxToolRounds: 3},
		"journey":        {Temperature: 0.7, MaxTokens: 2500, TimeoutSeconds: 60, MaxToolRounds: 0},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if cfg.Validation.PassThreshold < 0 || cfg.Validation.PassThreshold > 1 {
		return fmt.Errorf("validation.pass_threshold must be in [0,1]")
	}
	if cfg.Classification.LowConfidenceThreshold < 0 || cfg.Classification.LowConfidenceThreshold > 1 {
		return fmt.Errorf("classification.low_confidence_threshold must be in [0,1]")
	}
	if cfg.Journey.ControlGroupPercent < 0 || cfg.Journey.ControlGroupPercent > 100 {
		return fmt.Errorf("journey.control_group_percent must be in [0,100]")
	}
	return nil
}

// AgentConfigFor returns the config for the named agent, falling back to
// research-style defaults for unknown names.
func (c *Config) AgentConfigFor(name string) AgentConfig {
	if ac, ok := c.Agents[name]; ok {
		return ac
	}
	return AgentConfig{Temperature: 0.7, MaxTokens: 2000, TimeoutSeconds: 60}
}
