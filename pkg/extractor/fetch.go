package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
	"golang.org/x/time/rate"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// FindURL returns the first http(s) URL in text, or "".
func FindURL(text string) string {
	return strings.TrimRight(urlPattern.FindString(text), ".,;:!?)]}")
}

type FetcherConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second
	MaxBytes  int64
	UserAgent string
	// OnProgress is called with the URL before each request.
	OnProgress func(url string)
}

// Fetcher downloads a single page and extracts its text.
type Fetcher struct {
	config    FetcherConfig
	client    *http.Client
	limiter   *rate.Limiter
	extractor *Extractor
}

func NewFetcher(config FetcherConfig, extractor *Extractor) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 32 << 20
	}
	if config.UserAgent == "" {
		config.UserAgent = "neurodocs/1.0"
	}
	if extractor == nil {
		extractor = New(Config{MaxBytes: config.MaxBytes})
	}

	return &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		extractor: extractor,
	}
}

// Fetch downloads rawURL and returns its text as a document named after the
// page title, or the URL when the page has none. Every failure is an
// *types.ExtractionError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	doc, err := f.fetch(ctx, rawURL)
	if err != nil {
		if types.IsExtractionError(err) {
			return models.Document{}, err
		}
		return models.Document{}, &types.ExtractionError{Source: rawURL, Err: err}
	}
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (models.Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.Document{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return models.Document{}, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	if f.config.OnProgress != nil {
		f.config.OnProgress(rawURL)
	}

	// Apply rate limiting
	if err := f.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return models.Document{}, err
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return models.Document{}, fmt.Errorf("response exceeds %d bytes", f.config.MaxBytes)
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"))
	if resp.Header.Get("Content-Type") == "" {
		format = DetectFormat(parsed.Path, body)
	}

	name := rawURL
	var content string
	switch format {
	case FormatHTML:
		page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return models.Document{}, fmt.Errorf("failed to parse HTML: %w", err)
		}
		if t := title(page); t != "" {
			name = t
		}
		content = mainContent(page)
	default:
		if base := path.Base(parsed.Path); base != "/" && base != "." {
			name = base
		}
		content, err = f.extractor.extract(format, body)
		if err != nil {
			return models.Document{}, err
		}
	}

	return models.Document{
		Name:    name,
		Content: content,
	}, nil
}
