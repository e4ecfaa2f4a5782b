package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

var _ types.Generator = (*ChatEngine)(nil)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider       string
	Model          string
	Temperature    float64
	MaxTokens      int // 0 leaves the length to the model
	SystemTemplate string
	BaseURL        string
	APIKey         string
}

// ChatEngine is an engine that uses an LLM to generate chat responses.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if err := applyChatDefaults(&config); err != nil {
		return nil, err
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case ProviderOllama:
		model, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported chat provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if err := applyChatDefaults(&config); err != nil {
		return nil, err
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

func applyChatDefaults(config *ChatConfig) error {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderOpenAI:
			config.Model = "gpt-4o-mini"
		default:
			config.Model = "mistral"
		}
	}
	if config.Temperature <= 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.Provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	return nil
}

func (ce *ChatEngine) Config() ChatConfig {
	return ce.config
}

// Generate sends prior turns as separate chat messages followed by the prompt.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string, history []models.Turn) (string, error) {
	content := ce.messages(prompt, history)

	options := []llms.CallOption{llms.WithTemperature(ce.config.Temperature)}
	if ce.config.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(ce.config.MaxTokens))
	}

	response, err := ce.llm.GenerateContent(ctx, content, options...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	return response.Choices[0].Content, nil
}

func (ce *ChatEngine) messages(prompt string, history []models.Turn) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(history)+2)

	if ce.config.SystemTemplate != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate))
	}

	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}

	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
}
