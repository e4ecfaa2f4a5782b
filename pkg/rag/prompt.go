package rag

import (
	"strings"

	"github.com/xhad/neurodocs/internal/models"
)

// DefaultInstructions is the fixed preamble placed before every question.
const DefaultInstructions = `You are an expert document analysis assistant.

Based on the following context documents, please provide a concise, well-structured answer to the question.

Please ensure your answer:
1. Is brief but informative, focusing on the most important points
2. Uses bullet points sparingly for clarity when needed
3. Keeps the total response to around 100 words
4. If the information is not in the context, clearly state that`

// BuildPrompt lays out instructions, question and context in that order.
func BuildPrompt(instructions, context, question string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// JoinContext concatenates chunk texts in rank order, separated by blank lines.
func JoinContext(chunks []models.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if text := strings.TrimSpace(c.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
