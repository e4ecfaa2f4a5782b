package conversation_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/pkg/conversation"
)

func TestState_AppendAndHistory(t *testing.T) {
	s := conversation.New()
	assert.Empty(t, s.History())

	s.Append(models.Turn{Role: models.RoleUser, Content: "hello"})
	s.AppendExchange("What are cats?", "Mammals.")

	want := []models.Turn{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleUser, Content: "What are cats?"},
		{Role: models.RoleAssistant, Content: "Mammals."},
	}
	assert.Equal(t, want, s.History())
	assert.Equal(t, 3, s.Len())
}

func TestState_HistoryIsACopy(t *testing.T) {
	s := conversation.New()
	s.AppendExchange("q", "a")

	h := s.History()
	h[0].Content = "changed"

	assert.Equal(t, "q", s.History()[0].Content)
}

func TestState_Policy(t *testing.T) {
	s := conversation.New(conversation.WithPolicy(conversation.LastN(2)))
	for i := 0; i < 3; i++ {
		s.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Content: "q2"},
		{Role: models.RoleAssistant, Content: "a2"},
	}, s.History())
	assert.Equal(t, 6, s.Len())
}

func TestLastN(t *testing.T) {
	turns := []models.Turn{{Content: "1"}, {Content: "2"}, {Content: "3"}}

	assert.Equal(t, turns, conversation.LastN(0)(turns))
	assert.Equal(t, turns, conversation.LastN(5)(turns))
	assert.Equal(t, turns[1:], conversation.LastN(2)(turns))
}

func TestState_ConcurrentExchangesDoNotInterleave(t *testing.T) {
	s := conversation.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		}(i)
	}
	wg.Wait()

	history := s.History()
	require.Len(t, history, 100)
	for i := 0; i < len(history); i += 2 {
		q, a := history[i], history[i+1]
		assert.Equal(t, models.RoleUser, q.Role)
		assert.Equal(t, models.RoleAssistant, a.Role)
		assert.Equal(t, "a"+q.Content[1:], a.Content)
	}
}
