package store_test

import (
	"context"
	"strings"
	"unicode"
)

var vocabulary = []string{"cat", "dog", "mammal", "fish", "water", "what", "are", "too"}

// keywordEmbedder counts vocabulary words, ignoring case and a plural "s".
type keywordEmbedder struct {
	err error
}

func (e keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedKeywords(text)
	}
	return out, nil
}

func (e keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return embedKeywords(text), nil
}

func embedKeywords(text string) []float32 {
	vec := make([]float32, len(vocabulary))
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, word := range words {
		if len(word) > 3 {
			word = strings.TrimSuffix(word, "s")
		}
		for i, v := range vocabulary {
			if v == word {
				vec[i]++
			}
		}
	}
	return vec
}
