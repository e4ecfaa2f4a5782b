package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/neurodocs/internal/models"
)

// DefaultSeparators are tried coarsest first: paragraph, line, sentence end, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", " ", ""}

type ProcessorConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	Separators          []string
	NormalizeWhitespace bool
}

type Processor struct {
	config ProcessorConfig
}

// span is a byte range of the text being split.
type span struct {
	start, end int
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.Separators == nil {
		config.Separators = DefaultSeparators
	}

	return Processor{
		config: config,
	}
}

// Split is a shorthand for a processor with the default separators.
func Split(text string, chunkSize, overlap int) []models.Chunk {
	p := NewWithConfig(ProcessorConfig{
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
	})
	return p.Split(text)
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Process cleans the document content when configured and splits it into chunks.
func (p *Processor) Process(doc models.Document) models.ProcessedDocument {
	if p.config.NormalizeWhitespace {
		doc.Content = p.cleanText(doc.Content)
	}

	return models.ProcessedDocument{
		Document: doc,
		Chunks:   p.Split(doc.Content),
	}
}

// Split cuts text into chunks of at most ChunkSize runes. Consecutive chunks
// share up to ChunkOverlap runes of whole pieces, and every byte of text is
// covered by at least one chunk.
func (p *Processor) Split(text string) []models.Chunk {
	if text == "" {
		return nil
	}

	pieces := p.splitRecursive(text, span{0, len(text)}, p.config.Separators)
	return p.mergePieces(text, pieces)
}

func (p *Processor) splitRecursive(text string, s span, separators []string) []span {
	if utf8.RuneCountInString(text[s.start:s.end]) <= p.config.ChunkSize || len(separators) == 0 {
		return []span{s}
	}

	parts := splitKeepSeparator(text, s, separators[0])
	if len(parts) == 1 {
		return p.splitRecursive(text, s, separators[1:])
	}

	var pieces []span
	for _, part := range parts {
		if utf8.RuneCountInString(text[part.start:part.end]) <= p.config.ChunkSize {
			pieces = append(pieces, part)
			continue
		}
		pieces = append(pieces, p.splitRecursive(text, part, separators[1:])...)
	}

	return pieces
}

// splitKeepSeparator cuts s after every occurrence of sep. An empty sep cuts
// between runes.
func splitKeepSeparator(text string, s span, sep string) []span {
	var parts []span

	if sep == "" {
		for i := s.start; i < s.end; {
			_, size := utf8.DecodeRuneInString(text[i:s.end])
			parts = append(parts, span{i, i + size})
			i += size
		}
		return parts
	}

	start := s.start
	for start < s.end {
		idx := strings.Index(text[start:s.end], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		parts = append(parts, span{start, end})
		start = end
	}
	if start < s.end {
		parts = append(parts, span{start, s.end})
	}

	return parts
}

func (p *Processor) mergePieces(text string, pieces []span) []models.Chunk {
	var chunks []models.Chunk
	var window []span
	var lengths []int
	total := 0

	emit := func() {
		start, end := window[0].start, window[len(window)-1].end
		chunks = append(chunks, models.Chunk{
			Index:   len(chunks),
			Content: text[start:end],
			Start:   start,
			End:     end,
		})
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(text[piece.start:piece.end])

		if len(window) > 0 && total+n > p.config.ChunkSize {
			emit()

			// Keep a tail of the previous chunk as overlap.
			for len(window) > 0 && (total > p.config.ChunkOverlap || total+n > p.config.ChunkSize) {
				total -= lengths[0]
				window = window[1:]
				lengths = lengths[1:]
			}
		}

		window = append(window, piece)
		lengths = append(lengths, n)
		total += n
	}

	if len(window) > 0 {
		emit()
	}

	return chunks
}

func (p *Processor) cleanText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := 0

	for _, line := range lines {
		// Replace multiple spaces with single space
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
