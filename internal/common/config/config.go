package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Server         ServerConfig            `mapstructure:"server"`
	Database       DatabaseConfig          `mapstructure:"database"`
	LLM            LLMConfig               `mapstructure:"llm"`
	Agents         map[string]AgentConfig  `mapstructure:"agents"`
	Classification ClassificationConfig    `mapstructure:"classification"`
	Validation     ValidationConfig        `mapstructure:"validation"`
	Journey        JourneyConfig           `mapstructure:"journey"`
	Session        SessionConfig           `mapstructure:"session"`
	Logging        LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses      []string `mapstructure:"addresses"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	KnowledgeIndex string   `mapstructure:"knowledge_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig holds settings for the chat-completion endpoint.
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	BackoffBaseMS  int     `mapstructure:"backoff_base_ms"`
}

// AgentConfig holds the per-agent model call settings.
type AgentConfig struct {
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxToolRounds  int     `mapstructure:"max_tool_rounds"`
}

type ClassificationConfig struct {
	LowConfidenceThreshold float64 `mapstructure:"low_confidence_threshold"`
	ContextTurns           int     `mapstructure:"context_turns"`
}

type ValidationConfig struct {
	PassThreshold float64 `mapstructure:"pass_threshold"`
}

type JourneyConfig struct {
	ControlGroupPercent float64 `mapstructure:"control_group_percent"`
	DefaultDurationDays int     `mapstructure:"default_duration_days"`
}

type SessionConfig struct {
	TTLHours int `mapstructure:"ttl_hours"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
