package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	DeepSeek    DeepSeekConfig    `json:"deepseek"`
	Compression CompressionConfig `json:"compression"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type DeepSeekConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model"`
}

// CompressionConfig controls the context-window compression policy.
// TailSize is the number of most-recent messages always sent raw,
// BatchSize the number of older messages folded per summarization call.
type CompressionConfig struct {
	TailSize         int `json:"tail_size"`
	BatchSize        int `json:"batch_size"`
	MaxSummaryLength int `json:"max_summary_length"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	// Add config paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Check for user config directory
	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".deepchat"))
	}

	// Set defaults
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "deepchat")
	viper.SetDefault("database.database", "deepchat")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	viper.SetDefault("deepseek.model", "deepseek-chat")
	viper.SetDefault("compression.tail_size", 10)
	viper.SetDefault("compression.batch_size", 10)
	viper.SetDefault("compression.max_summary_length", 6000)

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := createDefaultConfig()
			loadEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Load environment variables
	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func createDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "deepchat",
			Password: "",
			Database: "deepchat",
			SSLMode:  "disable",
		},
		DeepSeek: DeepSeekConfig{
			BaseURL: "https://api.deepseek.com/v1",
			Model:   "deepseek-chat",
		},
		Compression: CompressionConfig{
			TailSize:         10,
			BatchSize:        10,
			MaxSummaryLength: 6000,
		},
	}
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("DEEPCHAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if host := os.Getenv("DEEPCHAT_HOST"); host != "" {
		cfg.Server.Host = host
	}

	// DeepSeek overrides
	if baseURL := os.Getenv("DEEPSEEK_BASE_URL"); baseURL != "" {
		cfg.DeepSeek.BaseURL = baseURL
	}
	if apiKey := os.Getenv("DEEPSEEK_API_KEY"); apiKey != "" {
		cfg.DeepSeek.APIKey = apiKey
	}
	if model := os.Getenv("DEEPSEEK_MODEL"); model != "" {
		cfg.DeepSeek.Model = model
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}
}
