package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	APIKey         string  `yaml:"api_key"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

type EmbeddingConfig struct {
	// Provider defaults to the LLM provider. "local" selects the offline
	// hashing embedder.
	Provider  string  `yaml:"provider"`
	BatchSize int     `yaml:"batch_size"`
	RateLimit float64 `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type ConversationConfig struct {
	// MaxTurns limits the history sent to the model. Zero sends everything.
	MaxTurns int `yaml:"max_turns"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type UIConfig struct {
	Theme string `yaml:"theme"`
}

type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Database     DatabaseConfig     `yaml:"database"`
	Processor    ProcessorConfig    `yaml:"processor"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Server       ServerConfig       `yaml:"server"`
	UI           UIConfig           `yaml:"ui"`
}

// LoadConfig reads path, or the first config file found in the default
// locations, then applies .env and environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/neurodocs/config.yaml"),
			"/etc/neurodocs/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

// loadDotEnv sets variables from a dotenv file without overriding the
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error loading %s: %w", path, err)
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "openai":
			config.LLM.Model = "gpt-4o-mini"
		default:
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.EmbeddingModel == "" {
		switch config.Embedding.Provider {
		case "openai":
			config.LLM.EmbeddingModel = "text-embedding-3-large"
		case "ollama":
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		}
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.5
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 100
	}
	if config.Embedding.RateLimit == 0 {
		config.Embedding.RateLimit = 2.0
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "document_chunks"
	}
	if config.Database.VectorDim == 0 {
		switch config.Embedding.Provider {
		case "openai":
			config.Database.VectorDim = 3072
		default:
			config.Database.VectorDim = 768
		}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 4
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if provider := os.Getenv("NEURODOCS_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if provider := os.Getenv("NEURODOCS_EMBEDDING_PROVIDER"); provider != "" {
		config.Embedding.Provider = provider
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if addr := os.Getenv("NEURODOCS_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if topK, err := strconv.Atoi(os.Getenv("NEURODOCS_TOP_K")); err == nil {
		config.Retrieval.TopK = topK
	}
}
