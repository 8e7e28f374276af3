package providers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseStructuredJSONPlainObject(t *testing.T) {
	raw, err := ParseStructuredJSON(`{"terms":[{"source":"道","target":"dao"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Terms []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"terms"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Terms) != 1 || decoded.Terms[0].Source != "道" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}

func TestParseStructuredJSONStripsCodeFences(t *testing.T) {
	content := "```json\n{\"terms\":[]}\n```"
	raw, err := ParseStructuredJSON(content)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"terms"`) {
		t.Fatalf("expected terms key in parsed output, got %s", raw)
	}
}

func TestParseStructuredJSONExtractsFromSurroundingCommentary(t *testing.T) {
	content := "Here is the result:\n{\"terms\":[]}\nLet me know if you need more."
	raw, err := ParseStructuredJSON(content)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"terms"`) {
		t.Fatalf("expected terms key in parsed output, got %s", raw)
	}
}

func TestParseStructuredJSONEmptyErrors(t *testing.T) {
	if _, err := ParseStructuredJSON("   "); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestParseStructuredJSONUnparsableErrors(t *testing.T) {
	if _, err := ParseStructuredJSON("not json at all"); err == nil {
		t.Fatal("expected error for unparsable content")
	}
}

const termSchema = `{
	"type": "object",
	"properties": {
		"terms": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"source": {"type": "string"},
					"target": {"type": "string"}
				},
				"required": ["source", "target"]
			}
		}
	},
	"required": ["terms"]
}`

func TestValidateStructuredJSONAcceptsMatchingDocument(t *testing.T) {
	parsed, err := ParseStructuredJSON(`{"terms":[{"source":"道","target":"dao"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateStructuredJSON(json.RawMessage(termSchema), parsed); err != nil {
		t.Fatalf("expected schema to validate, got %v", err)
	}
}

func TestValidateStructuredJSONRejectsMissingRequiredField(t *testing.T) {
	parsed, err := ParseStructuredJSON(`{"terms":[{"source":"道"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateStructuredJSON(json.RawMessage(termSchema), parsed); err == nil {
		t.Fatal("expected validation error for missing target field")
	}
}

func TestValidateStructuredJSONUnwrapsJSONSchemaWrapper(t *testing.T) {
	wrapped := `{"json_schema":{"name":"propose_terms","schema":` + termSchema + `}}`
	parsed, err := ParseStructuredJSON(`{"terms":[{"source":"道","target":"dao"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateStructuredJSON(json.RawMessage(wrapped), parsed); err != nil {
		t.Fatalf("expected unwrapped schema to validate, got %v", err)
	}
}

func TestStructuredRepairPromptIncludesSchemaOutputAndIssue(t *testing.T) {
	schema := json.RawMessage(termSchema)
	prompt := StructuredRepairPrompt(schema, `{"terms": "oops"}`, errTestIssue{})
	if !strings.Contains(prompt, "terms") {
		t.Fatal("expected repair prompt to include schema content")
	}
	if !strings.Contains(prompt, "oops") {
		t.Fatal("expected repair prompt to include the previous output")
	}
	if !strings.Contains(prompt, "bad shape") {
		t.Fatal("expected repair prompt to include the validation issue")
	}
}

type errTestIssue struct{}

func (errTestIssue) Error() string { return "bad shape" }
