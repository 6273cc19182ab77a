package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Taste      TasteConfig      `mapstructure:"taste"`
	Completion CompletionConfig `mapstructure:"completion"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	MetricsPort     int `mapstructure:"metrics_port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
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
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	HistoryIndex string   `mapstructure:"history_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Domain Configuration Sections ---

// TasteConfig holds settings for the taste-graph recommendation service.
type TasteConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	Timeout         int    `mapstructure:"timeout"`     // milliseconds, per outbound call
	MaxRetries      int    `mapstructure:"max_retries"` // transport-level retries per call
	TakeCap         int    `mapstructure:"take_cap"`
	DefaultCategory string `mapstructure:"default_category"`
	DefaultRadiusKm int    `mapstructure:"default_radius_km"`
	WideRadiusKm    int    `mapstructure:"wide_radius_km"`
}

// CompletionConfig holds settings for the black-box completion service.
type CompletionConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// PipelineConfig bounds the end-to-end request.
type PipelineConfig struct {
	Budget         int    `mapstructure:"budget"`          // milliseconds, whole pipeline
	ResolveTimeout int    `mapstructure:"resolve_timeout"` // milliseconds, per interest lookup
	DetailLevel    string `mapstructure:"detail_level"`    // requested default detail level
}

// UsageConfig controls the best-effort usage counter.
type UsageConfig struct {
	DailyCap   int `mapstructure:"daily_cap"`   // 0 disables the cap
	CacheTTL   int `mapstructure:"cache_ttl"`   // milliseconds
	CounterTTL int `mapstructure:"counter_ttl"` // milliseconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
