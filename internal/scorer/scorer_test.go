package scorer

import "testing"

func TestUnfittedScorerReportsNotFitted(t *testing.T) {
	s := New()
	if s.Fitted() {
		t.Fatal("zero-value scorer must report unfitted")
	}
	if s.ScoreForChunk("anything") != nil {
		t.Fatal("unfitted scorer must return nil scores")
	}
	if !s.NeedsRebuild(0, 5) {
		t.Fatal("unfitted scorer always needs a rebuild")
	}
}

func TestScoreForChunkOmitsAbsentTerms(t *testing.T) {
	s := New()
	s.Fit([]string{"doc with dao", "doc with linh khi"}, []string{"dao", "linh khi", "never-appears"}, 1)

	scores := s.ScoreForChunk("this chunk mentions dao twice: dao")
	if _, ok := scores["never-appears"]; ok {
		t.Fatal("absent term must be omitted entirely")
	}
	if _, ok := scores["linh khi"]; ok {
		t.Fatal("term not present in chunk must be omitted")
	}
	if scores["dao"] <= 0 {
		t.Fatalf("expected positive score for a present, non-universal term, got %v", scores["dao"])
	}
}

func TestScoreForChunkZerosUniversalTerms(t *testing.T) {
	s := New()
	// "universal" appears in every document fit against (df == D).
	s.Fit([]string{"universal term here", "universal term here too"}, []string{"universal"}, 1)

	scores := s.ScoreForChunk("universal shows up here")
	if scores["universal"] != 0 {
		t.Fatalf("term with df >= D must score 0, got %v", scores["universal"])
	}
}

func TestNeedsRebuildThreshold(t *testing.T) {
	s := New()
	s.Fit([]string{"doc"}, []string{"doc"}, 10)

	if s.NeedsRebuild(12, 5) {
		t.Fatal("drift of 2 must not trigger a rebuild with threshold 5")
	}
	if !s.NeedsRebuild(15, 5) {
		t.Fatal("drift of 5 must trigger a rebuild with threshold 5")
	}
}

func TestFitReplacesPreviousIndexAtomically(t *testing.T) {
	s := New()
	s.Fit([]string{"old doc with term"}, []string{"term"}, 1)
	first := s.ScoreForChunk("term term")

	s.Fit([]string{"new doc", "new doc", "new doc with term"}, []string{"term"}, 2)
	second := s.ScoreForChunk("term term")

	if first["term"] == second["term"] {
		t.Fatalf("expected re-fit to change the corpus size and thus the score")
	}
	if s.LastFitVersion() != 2 {
		t.Fatalf("expected last fit version 2, got %d", s.LastFitVersion())
	}
}
