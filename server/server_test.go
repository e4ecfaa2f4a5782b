package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/pkg/extractor"
	"github.com/xhad/neurodocs/pkg/processor"
	"github.com/xhad/neurodocs/pkg/rag"
	"github.com/xhad/neurodocs/pkg/store"
)

var vocabulary = []string{"cat", "dog", "mammal", "fish", "water", "live"}

type keywordEmbedder struct{}

func (keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedKeywords(text)
	}
	return out, nil
}

func (keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return embedKeywords(text), nil
}

func embedKeywords(text string) []float32 {
	vec := make([]float32, len(vocabulary))
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		word = strings.TrimSuffix(word, "s")
		for i, v := range vocabulary {
			if v == word {
				vec[i]++
			}
		}
	}
	return vec
}

// contextGenerator answers with the context section of the prompt.
type contextGenerator struct {
	mu  sync.Mutex
	err error
}

func (g *contextGenerator) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *contextGenerator) Generate(_ context.Context, prompt string, _ []models.Turn) (string, error) {
	g.mu.Lock()
	err := g.err
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	start := strings.Index(prompt, "Context:\n") + len("Context:\n")
	end := strings.LastIndex(prompt, "\n\nAnswer:")
	return prompt[start:end], nil
}

func newTestServer(t *testing.T, config Config) (*httptest.Server, *contextGenerator) {
	t.Helper()

	generator := &contextGenerator{}
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 20, ChunkOverlap: 5})
	index := store.NewEmbeddingIndex(keywordEmbedder{}, store.IndexConfig{})

	session, err := rag.NewSession(rag.SessionConfig{
		Processor: &p,
		Index:     index,
		Answerer:  rag.NewAnswerer(index, generator, rag.AnswererConfig{TopK: 1}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	fetcher := extractor.NewFetcher(extractor.FetcherConfig{RateLimit: 100}, nil)
	srv := New(session, extractor.New(extractor.Config{}), fetcher, config)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, generator
}

func upload(t *testing.T, baseURL, filename string, content []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(baseURL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func query(t *testing.T, baseURL, question string) *http.Response {
	t.Helper()

	payload, err := json.Marshal(queryRequest{Question: question})
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/query", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, healthResponse{Status: "ok", State: "empty"}, decode[healthResponse](t, resp))
}

func TestQueryBeforeUpload(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp := query(t, ts.URL, "What are cats?")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No document uploaded yet.", decode[errorResponse](t, resp).Detail)
}

func TestUploadAndQuery(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp := upload(t, ts.URL, "animals.txt", []byte("Cats are mammals.\n\nDogs are mammals too."))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uploadResponse{
		Status:      "success",
		Filename:    "animals.txt",
		TotalChunks: 3,
	}, decode[uploadResponse](t, resp))

	resp = query(t, ts.URL, "What are cats?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answer := decode[queryResponse](t, resp)
	assert.Equal(t, "What are cats?", answer.Question)
	assert.Equal(t, "Cats are mammals.", answer.Answer)

	histResp, err := http.Get(ts.URL + "/history")
	require.NoError(t, err)
	defer histResp.Body.Close()

	history := decode[historyResponse](t, histResp).History
	require.Len(t, history, 2)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "What are cats?"}, history[0])
	assert.Equal(t, models.Turn{Role: models.RoleAssistant, Content: "Cats are mammals."}, history[1])
}

func TestUploadErrors(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	t.Run("unreadable pdf", func(t *testing.T) {
		resp := upload(t, ts.URL, "broken.pdf", []byte("not really a pdf"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode[errorResponse](t, resp).Detail, "Error processing document")
	})

	t.Run("missing file field", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/upload", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

}

func TestUploadTooLarge(t *testing.T) {
	ts, _ := newTestServer(t, Config{MaxUploadBytes: 256})

	resp := upload(t, ts.URL, "big.txt", bytes.Repeat([]byte("a"), 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestQueryErrors(t *testing.T) {
	ts, generator := newTestServer(t, Config{})

	resp := upload(t, ts.URL, "animals.txt", []byte("Cats are mammals."))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("invalid body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty question", func(t *testing.T) {
		resp := query(t, ts.URL, " ")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("generation failure", func(t *testing.T) {
		generator.setErr(errors.New("model unavailable"))
		defer generator.setErr(nil)

		resp := query(t, ts.URL, "What are cats?")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, decode[errorResponse](t, resp).Detail, "model unavailable")
	})
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_QueryBeforeDocument(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageQuery, Content: "What are cats?"}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Equal(t, "No document uploaded yet.", msg.Content)
}

func TestWebSocket_URLThenQuestion(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Fish</title></head><body><main><p>Fish live in water.</p></main></body></html>`))
	}))
	defer page.Close()

	ts, _ := newTestServer(t, Config{})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageQuery, Content: page.URL + "/fish where do fish live?"}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageStatus, msg.Type)
	assert.Contains(t, msg.Content, "Processing URL")

	msg = readMessage(t, conn)
	assert.Equal(t, MessageStatus, msg.Type)
	assert.Equal(t, "Indexed 1 chunks from Fish", msg.Content)

	msg = readMessage(t, conn)
	assert.Equal(t, MessageResponse, msg.Type)
	assert.Equal(t, "Fish live in water.", msg.Content)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageHistory}))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageHistory, msg.Type)
	assert.Len(t, msg.Data, 2)
}

func TestWebSocket_BadMessages(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Content, "subscribe")
}
