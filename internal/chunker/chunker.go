// Package chunker splits a chapter's source text into translator-sized
// chunks, keeping dialogue blocks intact rather than severing them at an
// arbitrary character boundary.
package chunker

import (
	"regexp"
	"strings"
)

// speechVerbs are CJK speech-attribution markers that, at the end of a
// paragraph, signal dialogue is about to open on the next line.
var speechVerbs = []string{"道", "说", "问道", "喊道", "笑道", "说道"}

var blankLine = regexp.MustCompile(`\n\s*\n+`)

const (
	dialogueOverrunFraction = 0.20
	shortNarrationMaxChars  = 100
)

// openQuotes/closeQuotes pair up the quote styles seen in CJK and Latin
// source text; a paragraph "opens" dialogue if it contains more opens than
// closes. The straight double quote is in both sets, so it never counts
// here; inOpenDialogue tracks it by parity across the chunk instead.
var openQuotes = []rune{'"', '“', '「', '『'}
var closeQuotes = []rune{'"', '”', '」', '』'}

// Chunk splits text into an ordered, finite sequence of chunks targeting
// size characters each, never exceeding size by more than 20% when the
// dialogue-cohesion override is in effect.
func Chunk(text string, size int) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0
	maxOverrun := size + int(float64(size)*dialogueOverrunFraction)

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentLen = 0
		}
	}

	for i := 0; i < len(paragraphs); i++ {
		p := paragraphs[i]
		pLen := len([]rune(p))

		if currentLen > 0 && currentLen+pLen > size && (!inOpenDialogue(current) || currentLen+pLen > maxOverrun) {
			flush()
		}

		current = append(current, p)
		currentLen += pLen

		// Dialogue cohesion: keep pulling paragraphs in while the chunk is
		// still inside an open dialogue block, up to the overrun cap.
		for currentLen > size && inOpenDialogue(current) && i+1 < len(paragraphs) && currentLen+len([]rune(paragraphs[i+1])) <= maxOverrun {
			i++
			next := paragraphs[i]
			current = append(current, next)
			currentLen += len([]rune(next))
		}

		if currentLen >= size && !inOpenDialogue(current) {
			flush()
		}
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	raw := blankLine.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// inOpenDialogue reports whether the trailing paragraph of current leaves a
// dialogue block open: an unmatched opening quote (for straight double
// quotes, an odd count across the whole chunk), a trailing speech verb, or
// a short narration paragraph sandwiched between dialogue.
func inOpenDialogue(current []string) bool {
	if len(current) == 0 {
		return false
	}
	last := current[len(current)-1]

	if len(current) >= 2 {
		prev := current[len(current)-2]
		if len([]rune(last)) < shortNarrationMaxChars && endsWithQuote(prev, openQuotes) && !endsWithQuote(prev, closeQuotes) {
			return true
		}
	}

	if hasUnmatchedOpenQuote(last) || strings.Count(strings.Join(current, ""), "\"")%2 == 1 {
		return true
	}
	for _, verb := range speechVerbs {
		if strings.HasSuffix(strings.TrimRight(last, "。.!?\n \t"), verb) {
			return true
		}
	}
	return false
}

func hasUnmatchedOpenQuote(p string) bool {
	opens, closes := 0, 0
	for _, r := range p {
		if containsRune(openQuotes, r) {
			opens++
		}
		if containsRune(closeQuotes, r) {
			closes++
		}
	}
	return opens > closes
}

func endsWithQuote(p string, set []rune) bool {
	runes := []rune(strings.TrimRight(p, " \t\n"))
	if len(runes) == 0 {
		return false
	}
	return containsRune(set, runes[len(runes)-1])
}

func containsRune(set []rune, r rune) bool {
	for _, s := range set {
		if s == r {
			return true
		}
	}
	return false
}
