// Package scorer implements the glossary term scorer: a two-phase TF-IDF
// index over recently translated chapters, rebuilt opportunistically as the
// glossary grows. Grounded on the teacher's double-buffered provider
// registry pattern (internal/providers/registry.go), generalized from
// "swap in a new provider map" to "swap in a new fitted index" via the same
// atomic.Pointer technique so readers never block on a rebuild in flight.
package scorer

import (
	"math"
	"strings"
	"sync/atomic"
)

// fitted is the immutable result of one Fit call. Replacing the pointer
// atomically means in-flight ScoreForChunk calls keep using the index they
// started with; they never observe a partially built one.
type fitted struct {
	docFreq map[string]int
	docs    int
	terms   []string
}

// Scorer computes TF-IDF scores for glossary terms against chunks of
// translated-chapter text. Zero value is valid and reports Fitted() == false
// until the first Fit call succeeds.
type Scorer struct {
	state          atomic.Pointer[fitted]
	lastFitVersion uint64
}

// New returns an unfitted scorer.
func New() *Scorer {
	return &Scorer{}
}

// Fitted reports whether Fit has ever completed successfully.
func (s *Scorer) Fitted() bool {
	return s.state.Load() != nil
}

// LastFitVersion returns the glossary version this scorer was last fit
// against, for the rebuild-threshold comparison in the spec's rebuild
// policy.
func (s *Scorer) LastFitVersion() uint64 {
	return s.lastFitVersion
}

// NeedsRebuild reports whether currentVersion has drifted from the version
// last fit against by at least threshold mutations.
func (s *Scorer) NeedsRebuild(currentVersion uint64, threshold uint64) bool {
	if !s.Fitted() {
		return true
	}
	return currentVersion-s.lastFitVersion >= threshold
}

// Fit builds the document-frequency table over documents (recently sampled
// translated-chapter text) for the given terms (current glossary source
// terms), and records fitVersion as the glossary version this snapshot
// corresponds to.
func (s *Scorer) Fit(documents []string, terms []string, fitVersion uint64) {
	df := make(map[string]int, len(terms))
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
		df[lowered[i]] = 0
	}
	for _, doc := range documents {
		docLower := strings.ToLower(doc)
		for _, t := range lowered {
			if t == "" {
				continue
			}
			if strings.Contains(docLower, t) {
				df[t]++
			}
		}
	}
	s.state.Store(&fitted{docFreq: df, docs: len(documents), terms: lowered})
	s.lastFitVersion = fitVersion
}

// ScoreForChunk returns tf(term, chunk) * log(D / df(term)) for every term
// that occurs at least once in chunk. Terms absent from chunk are omitted;
// terms with df >= D score 0, deliberately de-prioritizing near-universal
// terms. Returns nil if the scorer has not been fit.
func (s *Scorer) ScoreForChunk(chunk string) map[string]float64 {
	f := s.state.Load()
	if f == nil {
		return nil
	}
	chunkLower := strings.ToLower(chunk)
	scores := make(map[string]float64)
	for _, term := range f.terms {
		if term == "" {
			continue
		}
		tf := strings.Count(chunkLower, term)
		if tf == 0 {
			continue
		}
		df := f.docFreq[term]
		if df >= f.docs {
			scores[term] = 0
			continue
		}
		if df == 0 {
			df = 1 // term occurs in chunk but was never in the fit corpus
		}
		scores[term] = float64(tf) * math.Log(float64(f.docs)/float64(df))
	}
	return scores
}
