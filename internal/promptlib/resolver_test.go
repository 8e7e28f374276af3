package promptlib

import "testing"

func TestNewResolverLoadsAllTemplates(t *testing.T) {
	r, err := NewResolver()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"translate.system", "translate.user", "polish.user", "glossary.extract"} {
		if _, ok := r.Get(key); !ok {
			t.Fatalf("expected template %q to be registered", key)
		}
	}
}

func TestRenderTranslateUserIncludesChunkAndGlossary(t *testing.T) {
	r, err := NewResolver()
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render("translate.user", map[string]string{
		"Glossary":     "- 道 => dao",
		"PriorContext": "...lingering context",
		"Chunk":        "the chunk text",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(out, "道 => dao") || !contains(out, "the chunk text") || !contains(out, "lingering context") {
		t.Fatalf("rendered prompt missing expected sections: %s", out)
	}
}

func TestRenderUnknownTemplateErrors(t *testing.T) {
	r, err := NewResolver()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Render("does.not.exist", nil); err == nil {
		t.Fatal("expected an error for an unregistered template key")
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
