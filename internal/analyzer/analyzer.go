// Package analyzer performs the one-shot, pre-crawl discovery of an index
// page's structure: which selector finds chapter links, and which selector
// (on a chapter page) finds the chapter body. The result is stored once in
// book.json and never recomputed; see the orchestrator's initialization
// step in the pipeline package.
//
// Grounded on goquery-based scrapers in the example pack (the same library
// the fetcher uses for extraction), applying a handful of common site
// conventions rather than a general-purpose layout inference model — this
// is deliberately a heuristic, not a solved problem.
package analyzer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/novelforge/novelforge/internal/book"
)

// candidateLinkSelectors are tried in order; the first that yields at least
// 3 links with a non-empty href wins. The hrefs are not compared with each
// other for consistency.
var candidateLinkSelectors = []string{
	".chapter-list a", "#chapterlist a", ".mulu a", ".book-chapter-list a",
	"ul.chapter a", ".list-chapter a", "dd a", "li a",
}

// candidateContentSelectors are tried, in order, against a sample chapter
// page fetched during analysis.
var candidateContentSelectors = []string{
	"#content", ".content", "#chaptercontent", ".chapter-content",
	"#BookText", ".read-content", "article",
}

// ChapterLink is one discovered entry from the index page.
type ChapterLink struct {
	Index int
	Title string
	URL   string
}

// Analyze inspects indexHTML (the book's index/table-of-contents page) and
// sampleChapterHTML (one chapter page, to validate the content selector),
// returning the discovered pattern record and the chapter list.
func Analyze(indexHTML, indexURL, sampleChapterHTML string) (*book.Patterns, []ChapterLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(indexHTML))
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: parse index: %w", err)
	}

	linkSelector, links, err := pickLinkSelector(doc, indexURL)
	if err != nil {
		return nil, nil, err
	}

	contentSelector := pickContentSelector(sampleChapterHTML)

	patterns := &book.Patterns{
		ChapterLinkSelector: linkSelector,
		ContentSelector:     contentSelector,
	}
	return patterns, links, nil
}

func pickLinkSelector(doc *goquery.Document, indexURL string) (string, []ChapterLink, error) {
	base, _ := url.Parse(indexURL)

	for _, selector := range candidateLinkSelectors {
		sel := doc.Find(selector)
		if sel.Length() < 3 {
			continue
		}

		var links []ChapterLink
		sel.Each(func(i int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return
			}
			resolved := resolveURL(base, href)
			title := strings.TrimSpace(s.Text())
			links = append(links, ChapterLink{
				Index: i + 1,
				Title: title,
				URL:   resolved,
			})
		})
		if len(links) >= 3 {
			return selector, links, nil
		}
	}
	return "", nil, fmt.Errorf("analyzer: no selector candidate found at least 3 chapter links")
}

func pickContentSelector(sampleHTML string) string {
	if sampleHTML == "" {
		return candidateContentSelectors[0]
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sampleHTML))
	if err != nil {
		return candidateContentSelectors[0]
	}
	best := candidateContentSelectors[0]
	bestLen := 0
	for _, selector := range candidateContentSelectors {
		text := strings.TrimSpace(doc.Find(selector).Text())
		if len(text) > bestLen {
			bestLen = len(text)
			best = selector
		}
	}
	return best
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
