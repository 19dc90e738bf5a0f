package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher answers free-text web queries.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// TrendSearch looks up current discussion around an industry so gap
// analysis can point at topics competitors already cover.
type TrendSearch struct {
	client Searcher
}

func NewTrendSearch(maxResults int) (*TrendSearch, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &TrendSearch{client: ddg}, nil
}

// NewTrendSearchWith wraps an existing searcher.
func NewTrendSearchWith(client Searcher) *TrendSearch {
	return &TrendSearch{client: client}
}

// Trends searches for recent content trends in industry, optionally
// narrowed by keywords.
func (s *TrendSearch) Trends(ctx context.Context, industry string, keywords []string) (string, error) {
	query := strings.TrimSpace(industry + " content marketing trends")
	if len(keywords) > 0 {
		query += " " + strings.Join(keywords, " ")
	}
	res, err := s.client.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return truncate(res, 4000), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated) ..."
}
