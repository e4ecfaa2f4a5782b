package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/pkg/llm"
)

// recordingModel captures what the engine sends to the model.
type recordingModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	reply    string
	err      error
}

func (m *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func textOf(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.Len(t, msg.Parts, 1)
	part, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.ChatConfig
		wantErr string
	}{
		{
			name: "ollama",
			config: llm.ChatConfig{
				Model:       "testmodel",
				Temperature: 0.5,
				BaseURL:     "http://localhost:1234",
			},
		},
		{
			name:    "temperature out of range",
			config:  llm.ChatConfig{Temperature: 1.5},
			wantErr: "temperature",
		},
		{
			name:    "zero temperature",
			config:  llm.ChatConfig{},
			wantErr: "temperature",
		},
		{
			name:    "negative max tokens",
			config:  llm.ChatConfig{Temperature: 0.5, MaxTokens: -1},
			wantErr: "max tokens",
		},
		{
			name:    "openai without key",
			config:  llm.ChatConfig{Provider: llm.ProviderOpenAI, Temperature: 0.5},
			wantErr: "API key",
		},
		{
			name:    "unknown provider",
			config:  llm.ChatConfig{Provider: "carrier-pigeon", Temperature: 0.5},
			wantErr: "unsupported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, llm.ProviderOllama, engine.Config().Provider)
		})
	}
}

func TestGenerate_SendsHistoryAsMessages(t *testing.T) {
	model := &recordingModel{reply: "Cats are mammals."}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Temperature: 0.5})
	require.NoError(t, err)

	history := []models.Turn{
		{Role: models.RoleUser, Content: "What is the document about?"},
		{Role: models.RoleAssistant, Content: "Animals."},
	}

	answer, err := engine.Generate(context.Background(), "PROMPT", history)
	require.NoError(t, err)
	assert.Equal(t, "Cats are mammals.", answer)

	require.Len(t, model.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
	assert.Equal(t, "What is the document about?", textOf(t, model.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[1].Role)
	assert.Equal(t, "Animals.", textOf(t, model.messages[1]))
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[2].Role)
	assert.Equal(t, "PROMPT", textOf(t, model.messages[2]))

	assert.Equal(t, 0.5, model.options.Temperature)
	assert.Zero(t, model.options.MaxTokens)
}

func TestGenerate_SystemTemplateAndMaxTokens(t *testing.T) {
	model := &recordingModel{reply: "ok"}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{
		Temperature:    0.7,
		MaxTokens:      256,
		SystemTemplate: "Be brief.",
	})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), "question", nil)
	require.NoError(t, err)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, 256, model.options.MaxTokens)
}

func TestGenerate_Error(t *testing.T) {
	model := &recordingModel{err: errors.New("quota exceeded")}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Temperature: 0.5})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), "question", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
