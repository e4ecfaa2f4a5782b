// Package extractor turns uploaded files and fetched pages into plain text.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xhad/neurodocs/internal/types"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

var _ types.Extractor = (*Extractor)(nil)

type Config struct {
	// MaxBytes rejects larger inputs. Zero means 32 MiB.
	MaxBytes int64
	Logger   *slog.Logger
}

// Extractor picks a format from the file name, falling back to sniffing the
// content, and extracts linear text.
type Extractor struct {
	config Config
}

func New(config Config) *Extractor {
	if config.MaxBytes <= 0 {
		config.MaxBytes = 32 << 20
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Extractor{config: config}
}

func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if int64(len(data)) > e.config.MaxBytes {
		return "", &types.ExtractionError{
			Source: name,
			Err:    fmt.Errorf("file is %d bytes, limit is %d", len(data), e.config.MaxBytes),
		}
	}

	format := DetectFormat(name, data)
	text, err := e.extract(format, data)
	if err != nil {
		return "", &types.ExtractionError{Source: name, Err: err}
	}

	e.config.Logger.Debug("text extracted",
		"source", name,
		"format", format,
		"bytes", len(data),
		"chars", utf8.RuneCountInString(text))

	return text, nil
}

func (e *Extractor) extract(format Format, data []byte) (string, error) {
	switch format {
	case FormatPDF:
		return PDF(data)
	case FormatHTML:
		return HTML(bytes.NewReader(data))
	default:
		return Text(data)
	}
}

// DetectFormat trusts a known extension and sniffs the content otherwise.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".html", ".htm", ".xhtml":
		return FormatHTML
	case ".txt", ".md", ".markdown", ".text", ".csv", ".log":
		return FormatText
	}
	return formatFromContentType(http.DetectContentType(data))
}

func formatFromContentType(contentType string) Format {
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "application/pdf"):
		return FormatPDF
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		return FormatHTML
	default:
		return FormatText
	}
}

// Text accepts UTF-8 input only; a leading byte order mark is dropped.
func Text(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8 text")
	}
	return string(data), nil
}
