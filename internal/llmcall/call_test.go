package llmcall

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/novelforge/novelforge/internal/providers"
)

func TestFromChatResultNilReturnsNil(t *testing.T) {
	if FromChatResult(nil, RecordOptions{}) != nil {
		t.Fatal("expected nil for nil result")
	}
}

func TestFromChatResultCopiesFields(t *testing.T) {
	temp := 0.3
	result := &providers.ChatResult{
		Content:          "translated text",
		PromptTokens:     120,
		CompletionTokens: 80,
		ExecutionTime:    250 * time.Millisecond,
		Provider:         "openai",
		ModelUsed:        "gpt-4o",
		Success:          true,
	}
	call := FromChatResult(result, RecordOptions{
		ChapterIndex: 4,
		Task:         "translate",
		PromptKey:    "translate.user",
		PromptHash:   "abc123",
		Temperature:  &temp,
	})
	if call == nil {
		t.Fatal("expected non-nil call")
	}
	if call.ChapterIndex != 4 || call.Task != "translate" {
		t.Fatalf("unexpected identifying fields: %+v", call)
	}
	if call.Provider != "openai" || call.Model != "gpt-4o" {
		t.Fatalf("unexpected provider fields: %+v", call)
	}
	if call.InputTokens != 120 || call.OutputTokens != 80 {
		t.Fatalf("unexpected token counts: %+v", call)
	}
	if call.LatencyMs != 250 {
		t.Fatalf("expected 250ms latency, got %d", call.LatencyMs)
	}
	if call.Temperature == nil || *call.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", call.Temperature)
	}
	if !call.Success || call.Error != "" {
		t.Fatalf("expected success with no error: %+v", call)
	}
}

func TestFromChatResultCapturesFailure(t *testing.T) {
	result := &providers.ChatResult{
		Success:      false,
		ErrorMessage: "rate limited",
		Provider:     "openai",
	}
	call := FromChatResult(result, RecordOptions{Task: "crawl"})
	if call.Success {
		t.Fatal("expected Success false")
	}
	if call.Error != "rate limited" {
		t.Fatalf("expected error message to be carried over, got %q", call.Error)
	}
}

func TestStoreAppendWritesOneLinePerCall(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		call := FromChatResult(&providers.ChatResult{
			Content:  "x",
			Provider: "openai",
			Success:  true,
		}, RecordOptions{ChapterIndex: i, Task: "translate"})
		if err := store.Append(call); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var decoded Call
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if decoded.ChapterIndex != 0 {
		t.Fatalf("expected first line to have chapter_index 0, got %d", decoded.ChapterIndex)
	}
}

func TestStoreAppendNilIsNoop(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(nil); err != nil {
		t.Fatalf("expected nil-call append to be a no-op, got %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty log file, got %q", data)
	}
}
