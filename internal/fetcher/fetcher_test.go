package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<html><body><div class=\"content\">hello chapter text here, long enough to pass.</div></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 5, Timeout: 2 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL, "utf-8")
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if page.HTML == "" {
		t.Fatal("expected non-empty page body")
	}
}

func TestFetchDoesNotRetry4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 5, Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL, "utf-8")
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable 4xx, got %d", attempts)
	}
}

func TestExtractFallsBackToReadabilityWhenSelectorMisses(t *testing.T) {
	html := `<html><body><article><p>` + string(make([]byte, 0)) +
		`This is a sufficiently long piece of real chapter content that should be picked up by the readability fallback path when the CSS selector finds nothing useful on the page.` +
		`</p></article></body></html>`
	text, err := Extract(html, ".does-not-exist", "https://example.com/c/1")
	if err != nil {
		t.Fatal(err)
	}
	if len(text) < minExtractedChars {
		t.Fatalf("expected readability fallback to extract real content, got %q", text)
	}
}

func TestExtractFiltersNavigationMarkers(t *testing.T) {
	text := filterNavigation("上一章\n\n这是正文内容，足够长，应该被保留下来。\n\n下一章")
	if contains(text, "上一章") || contains(text, "下一章") {
		t.Fatalf("expected navigation markers filtered, got %q", text)
	}
	if !contains(text, "正文") {
		t.Fatalf("expected real content kept, got %q", text)
	}
}

func TestReplacementRateComputation(t *testing.T) {
	if rate := replacementRate("hello world"); rate != 0 {
		t.Fatalf("expected 0 for clean text, got %v", rate)
	}
	if rate := replacementRate("��ллo"); rate <= 0 {
		t.Fatal("expected positive replacement rate when U+FFFD present")
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
