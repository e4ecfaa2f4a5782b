// Package conversation keeps the running dialogue of a session.
package conversation

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
)

var _ types.ConversationHistory = (*State)(nil)

// Policy selects which stored turns History exposes. It never removes turns
// from storage.
type Policy func(turns []models.Turn) []models.Turn

// LastN keeps the n most recent turns. n <= 0 keeps everything.
func LastN(n int) Policy {
	return func(turns []models.Turn) []models.Turn {
		if n <= 0 || len(turns) <= n {
			return turns
		}
		return turns[len(turns)-n:]
	}
}

type Option func(*State)

func WithPolicy(p Policy) Option {
	return func(s *State) {
		s.policy = p
	}
}

// State is an append-only conversation log backed by a langchaingo chat
// message history. Appends are serialized.
type State struct {
	mu      sync.RWMutex
	history *memory.ChatMessageHistory
	policy  Policy
}

func New(opts ...Option) *State {
	s := &State{
		history: memory.NewChatMessageHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) Append(turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.add(turn)
}

// AppendExchange records a question and its answer as adjacent turns.
func (s *State) AppendExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.add(models.Turn{Role: models.RoleUser, Content: question})
	s.add(models.Turn{Role: models.RoleAssistant, Content: answer})
}

func (s *State) add(turn models.Turn) {
	// The in-memory history never fails.
	ctx := context.Background()
	if turn.Role == models.RoleAssistant {
		_ = s.history.AddAIMessage(ctx, turn.Content)
		return
	}
	_ = s.history.AddUserMessage(ctx, turn.Content)
}

// History returns the turns in chronological order, shaped by the policy.
func (s *State) History() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.all()
	if s.policy != nil {
		turns = s.policy(turns)
	}
	return turns
}

// Len is the number of stored turns, ignoring the policy.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.all())
}

func (s *State) all() []models.Turn {
	messages, _ := s.history.Messages(context.Background())

	turns := make([]models.Turn, 0, len(messages))
	for _, msg := range messages {
		role := models.RoleUser
		if msg.GetType() == llms.ChatMessageTypeAI {
			role = models.RoleAssistant
		}
		turns = append(turns, models.Turn{Role: role, Content: msg.GetContent()})
	}
	return turns
}
