package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/xhad/neurodocs/pkg/extractor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	MessageQuery    = "query"
	MessageHistory  = "history"
	MessageStatus   = "status"
	MessageResponse = "response"
	MessageError    = "error"
)

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("error reading message", "error", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(ws, MessageError, "Message must be JSON with type and content fields")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	switch msg.Type {
	case MessageHistory:
		if err := ws.send(Message{Type: MessageHistory, Data: s.session.History()}); err != nil {
			s.logger.Warn("error sending message", "error", err)
		}
		return
	case MessageQuery, "":
	default:
		s.sendMessage(ws, MessageError, fmt.Sprintf("Unknown message type %q", msg.Type))
		return
	}

	query := strings.TrimSpace(msg.Content)

	// Check for URL in the query
	if url := extractor.FindURL(query); url != "" {
		s.sendMessage(ws, MessageStatus, fmt.Sprintf("Processing URL: %s", url))

		doc, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			_, detail := errorStatus(err)
			s.sendMessage(ws, MessageError, detail)
			return
		}

		result, err := s.session.Ingest(ctx, doc.Name, doc.Content)
		if err != nil {
			_, detail := errorStatus(err)
			s.sendMessage(ws, MessageError, detail)
			return
		}
		s.sendMessage(ws, MessageStatus, fmt.Sprintf("Indexed %d chunks from %s", result.ChunkCount, doc.Name))

		// Only continue with chat if query contains more than just the URL
		query = strings.TrimSpace(strings.Replace(query, url, "", 1))
		if query == "" {
			return
		}
	}

	result, err := s.session.Ask(ctx, query)
	if err != nil {
		status, detail := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("websocket query failed", "error", err)
		}
		s.sendMessage(ws, MessageError, detail)
		return
	}

	s.sendMessage(ws, MessageResponse, result.Answer)
}

func (s *Server) sendMessage(ws *wsConn, msgType string, content string) {
	if err := ws.send(Message{Type: msgType, Content: content}); err != nil {
		s.logger.Warn("error sending message", "error", err)
	}
}
