package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/glossary"
	"github.com/novelforge/novelforge/internal/home"
	"github.com/novelforge/novelforge/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status <book-slug>",
	Short: "Print a book's reconciled progress summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	slug := args[0]

	h, err := home.New(homeDir)
	if err != nil {
		return err
	}

	dir := book.NewDir(h.BooksPath(), slug)
	store, err := progress.Load(dir, "")
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	snap := store.Snapshot()

	gloss, err := glossary.Load(dir.GlossaryPath())
	if err != nil {
		return fmt.Errorf("load glossary: %w", err)
	}

	title := snap.Title
	if snap.TitleTranslated != "" {
		title = fmt.Sprintf("%s (%s)", snap.Title, snap.TitleTranslated)
	}
	fmt.Printf("%s\n", title)
	fmt.Printf("chapters: %d\n", len(snap.Chapters))
	for status, n := range snap.CountByStatus() {
		fmt.Printf("  %-10s %d\n", status, n)
	}
	fmt.Printf("glossary: %d entries (v%d)\n", gloss.Len(), gloss.Version())
	return nil
}
