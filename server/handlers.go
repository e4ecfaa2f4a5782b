package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
	"github.com/xhad/neurodocs/pkg/rag"
)

type uploadResponse struct {
	Status      string `json:"status"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"total_chunks"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type historyResponse struct {
	History []models.Turn `json:"history"`
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "A file field named \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Error reading upload: %v", err))
		return
	}

	result, err := s.session.Upload(r.Context(), header.Filename, data, s.extractor)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Status:      "success",
		Filename:    header.Filename,
		TotalChunks: result.ChunkCount,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Request body must be JSON with a \"question\" field")
		return
	}

	result, err := s.session.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, queryResponse{
		Question: result.Question,
		Answer:   result.Answer,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.session.History()
	if history == nil {
		history = []models.Turn{}
	}
	s.writeJSON(w, http.StatusOK, historyResponse{History: history})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		State:  s.session.State().String(),
	})
}

// errorStatus maps session errors onto HTTP statuses and client-facing text.
func errorStatus(err error) (int, string) {
	var (
		extractionErr *types.ExtractionError
		embeddingErr  *types.EmbeddingServiceError
		generationErr *types.GenerationError
	)

	switch {
	case types.IsNotReady(err):
		return http.StatusBadRequest, "No document uploaded yet."
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest, "Question must not be empty."
	case errors.As(err, &extractionErr):
		return http.StatusBadRequest, fmt.Sprintf("Error processing document: %v", extractionErr.Err)
	case errors.As(err, &embeddingErr):
		return http.StatusInternalServerError, fmt.Sprintf("Error creating embeddings: %v", embeddingErr.Err)
	case errors.As(err, &generationErr):
		return http.StatusInternalServerError, fmt.Sprintf("Error generating answer: %v", generationErr.Err)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	status, detail := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeError(w, status, detail)
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: strings.TrimSpace(detail)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}
