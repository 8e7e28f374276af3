package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// runCLI executes rootCmd with the given args, capturing stdout.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)

	if execErr != nil {
		t.Fatalf("command %v failed: %v\noutput:\n%s", args, execErr, buf.String())
	}
	return buf.String()
}

func TestStatusOnFreshBookReportsZeroChapters(t *testing.T) {
	home := t.TempDir()
	out := runCLI(t, "--home", home, "status", "new-book")

	if !strings.Contains(out, "chapters: 0") {
		t.Fatalf("expected a zero-chapter summary, got:\n%s", out)
	}
}

func TestGlossaryAddThenListThenRemove(t *testing.T) {
	home := t.TempDir()

	// cobra/pflag only assigns a bound var when its flag is actually present
	// in argv, so these package-level vars must be reset by hand between
	// calls that don't pass them.
	resetGlossaryFlags := func() { glossaryAdd, glossaryRemove = "", "" }

	runCLI(t, "--home", home, "glossary", "a-book", "--add", "道=Dao:technique")
	resetGlossaryFlags()

	out := runCLI(t, "--home", home, "glossary", "a-book")
	if !strings.Contains(out, "道") || !strings.Contains(out, "Dao") {
		t.Fatalf("expected the added entry to be listed, got:\n%s", out)
	}
	resetGlossaryFlags()

	runCLI(t, "--home", home, "glossary", "a-book", "--remove", "道")
	resetGlossaryFlags()

	out = runCLI(t, "--home", home, "glossary", "a-book")
	if strings.Contains(out, "道") {
		t.Fatalf("expected the entry to be removed, got:\n%s", out)
	}
}

func TestVersionCommandPrintsRelease(t *testing.T) {
	out := runCLI(t, "version")
	if !strings.Contains(out, "novelforge") {
		t.Fatalf("expected version output to mention novelforge, got:\n%s", out)
	}
}
