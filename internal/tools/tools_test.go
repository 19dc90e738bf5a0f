package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingSearcher struct {
	query string
	resp  string
	err   error
}

func (r *recordingSearcher) Call(_ context.Context, input string) (string, error) {
	r.query = input
	return r.resp, r.err
}

func TestTrendSearch(t *testing.T) {
	rec := &recordingSearcher{resp: "1. Short video is up 40%"}
	s := NewTrendSearchWith(rec)

	out, err := s.Trends(context.Background(), "fintech", []string{"forecasting"})
	if err != nil {
		t.Fatalf("Trends failed: %v", err)
	}
	if out != rec.resp {
		t.Errorf("Expected %q, got %q", rec.resp, out)
	}
	if !strings.Contains(rec.query, "fintech") || !strings.Contains(rec.query, "forecasting") {
		t.Errorf("Query missing industry or keywords: %q", rec.query)
	}

	rec.err = errors.New("rate limited")
	if _, err := s.Trends(context.Background(), "fintech", nil); err == nil {
		t.Error("Expected search error to propagate")
	}
}

func TestWebsiteReader_Summary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Ledgerly</title></head><body>
<article><h1>Ledgerly</h1>
<p>Ledgerly builds cash flow forecasting software for finance teams at growing companies.
Our customers close their books faster and plan with confidence.</p>
<p>We publish guides on forecasting, budgeting and treasury management every week.</p>
<script>alert("x")</script>
</article></body></html>`)
	}))
	defer srv.Close()

	reader := NewWebsiteReader()
	out, err := reader.Summary(context.Background(), srv.URL+"/about")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if !strings.Contains(out, "forecasting software") {
		t.Errorf("Expected article text, got %q", out)
	}
	if strings.Contains(out, "<script>") || strings.Contains(out, "alert(") {
		t.Errorf("Expected scripts to be stripped, got %q", out)
	}

	if _, err := reader.Summary(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Expected error for 404")
	}
	if _, err := reader.Summary(context.Background(), "not a url"); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("Expected untouched string, got %q", got)
	}
	if got := truncate("abcdef", 3); !strings.HasPrefix(got, "abc\n") {
		t.Errorf("Expected truncated string, got %q", got)
	}
}
