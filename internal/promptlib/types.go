// Package promptlib holds the translation pipeline's prompt templates:
// embedded Go templates for the translator's system/user prompts, the
// polish pass, and the glossary extractor's structured-output request.
//
// Adapted from the teacher's internal/prompts package: kept the
// embedded-template-plus-hash traceability model, dropped the
// database-backed per-book override layer (this pipeline has no prompt
// override store; every book uses the same style-templated prompts).
package promptlib

// Template is one registered prompt: a Go text/template source plus
// metadata for traceability (which variables it references, a content hash
// so a call log entry can be matched back to the exact template text that
// produced it).
type Template struct {
	Key       string   // e.g. "translate.system", "glossary.extract"
	Text      string   // Go template source
	Variables []string // extracted template variable names
	Hash      string   // SHA256 of Text, for call-log traceability
}
