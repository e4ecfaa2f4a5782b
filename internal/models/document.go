package models

// Document is the active source text of a session.
type Document struct {
	ID      string
	Name    string
	Content string
}

// Chunk is a contiguous slice Content == text[Start:End] of the ingested document.
type Chunk struct {
	Index   int
	Content string
	Start   int
	End     int
}

type ProcessedDocument struct {
	Document
	Chunks []Chunk
}

type ScoredChunk struct {
	Chunk
	Score float64
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance of the running dialogue.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type IngestResult struct {
	DocumentID string
	Name       string
	ChunkCount int
}

type AnswerResult struct {
	Question string
	Answer   string
	Sources  []ScoredChunk
}
