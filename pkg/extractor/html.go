package extractor

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	contentSelectors = []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	noiseSelectors = "script, style, noscript, template, nav, footer, iframe"

	noisePatterns = []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
)

// HTML returns the readable text of the page's main content area.
func HTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return mainContent(doc), nil
}

func mainContent(doc *goquery.Document) string {
	doc.Find(noiseSelectors).Remove()

	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

func title(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

// cleanContent collapses runs of spaces inside lines and drops blank lines,
// keeping one line per text block so paragraph boundaries survive.
func cleanContent(content string) string {
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}
