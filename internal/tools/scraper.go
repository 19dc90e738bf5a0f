package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// WebsiteReader fetches a page and extracts its main content as plain text.
type WebsiteReader struct {
	UserAgent string
	Client    *http.Client
	MaxChars  int
}

func NewWebsiteReader() *WebsiteReader {
	return &WebsiteReader{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
		MaxChars:  6000,
	}
}

// Summary returns the title, excerpt and sanitized body of pageURL.
func (s *WebsiteReader) Summary(ctx context.Context, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %v", err)
	}

	// Remove any remaining HTML tags or scripts
	p := bluemonday.StrictPolicy()
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", p.Sanitize(article.Title))
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", p.Sanitize(article.Excerpt))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(p.Sanitize(article.TextContent)))

	out := b.String()
	if s.MaxChars > 0 && len(out) > s.MaxChars {
		out = out[:s.MaxChars] + "\n... (content truncated) ..."
	}
	return out, nil
}
