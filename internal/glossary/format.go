package glossary

import (
	"fmt"
	"sort"
	"strings"
)

// Scorer is the subset of the term scorer's behavior FormatRelevant needs.
// Defined here (rather than imported from internal/scorer) so glossary has
// no dependency on the scoring implementation; internal/scorer satisfies
// this interface instead of glossary importing it.
type Scorer interface {
	Fitted() bool
	ScoreForChunk(chunk string) map[string]float64
}

// FormatRelevant returns a human-readable, prompt-ready enumeration of the
// top-scoring glossary terms for chunkText. When scorer is fitted, terms
// are ranked by descending score and the top maxEntries are kept (or all
// scored terms if fewer than maxEntries occur in the chunk). When scorer
// reports it is not yet fitted, this falls back to the first minEntries
// entries of the glossary in insertion order, so translation can proceed
// before the corpus is large enough to score.
func (s *Store) FormatRelevant(chunkText string, scorer Scorer, maxEntries, minEntries int) string {
	var chosen []Entry

	if scorer != nil && scorer.Fitted() {
		scores := scorer.ScoreForChunk(chunkText)
		terms := make([]string, 0, len(scores))
		for t := range scores {
			terms = append(terms, t)
		}
		sort.Slice(terms, func(i, j int) bool {
			if scores[terms[i]] != scores[terms[j]] {
				return scores[terms[i]] > scores[terms[j]]
			}
			return terms[i] < terms[j] // stable tie-break
		})
		if len(terms) > maxEntries {
			terms = terms[:maxEntries]
		}
		for _, t := range terms {
			if e, ok := s.Get(t); ok {
				chosen = append(chosen, e)
			}
		}
	} else {
		all := s.InsertionOrder()
		if len(all) > minEntries {
			all = all[:minEntries]
		}
		chosen = all
	}

	return formatEntries(chosen)
}

func formatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s => %s", e.SourceTerm, e.TargetTerm)
		if e.Category != "" {
			fmt.Fprintf(&b, " (%s)", e.Category)
		}
		if e.Notes != "" {
			fmt.Fprintf(&b, ": %s", e.Notes)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
