package analyzer

import "testing"

const sampleIndex = `<html><body>
<div class="chapter-list">
<a href="/book/1/1.html">Chapter 1</a>
<a href="/book/1/2.html">Chapter 2</a>
<a href="/book/1/3.html">Chapter 3</a>
</div>
</body></html>`

const sampleChapter = `<html><body>
<div class="content">` + sampleChapterBody + `</div>
</body></html>`

const sampleChapterBody = `This is enough sample chapter text to win the content selector race against the other shorter candidates on the page, so it should be picked.`

func TestAnalyzeDiscoversLinkAndContentSelectors(t *testing.T) {
	patterns, links, err := Analyze(sampleIndex, "https://example.com/book/1/", sampleChapter)
	if err != nil {
		t.Fatal(err)
	}
	if patterns.ChapterLinkSelector != ".chapter-list a" {
		t.Fatalf("expected .chapter-list a, got %q", patterns.ChapterLinkSelector)
	}
	if patterns.ContentSelector != ".content" {
		t.Fatalf("expected .content, got %q", patterns.ContentSelector)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	if links[0].URL != "https://example.com/book/1/1.html" {
		t.Fatalf("expected resolved absolute URL, got %q", links[0].URL)
	}
}

func TestAnalyzeFailsWithoutEnoughLinks(t *testing.T) {
	_, _, err := Analyze(`<html><body><a href="/x">one link</a></body></html>`, "https://example.com/", "")
	if err == nil {
		t.Fatal("expected an error when no selector yields at least 3 links")
	}
}
