package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/glossary"
	"github.com/novelforge/novelforge/internal/home"
)

var (
	glossaryAdd    string
	glossaryRemove string
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary <book-slug>",
	Short: "Inspect or edit a book's glossary",
	Long: `Print a book's glossary, or add/remove one entry.

--add takes "source=target:category", category optional and defaulting
to "general". --remove takes a source term.`,
	Args: cobra.ExactArgs(1),
	RunE: runGlossary,
}

func init() {
	glossaryCmd.Flags().StringVar(&glossaryAdd, "add", "", "source=target:category to add or overwrite")
	glossaryCmd.Flags().StringVar(&glossaryRemove, "remove", "", "source term to remove")
}

func runGlossary(cmd *cobra.Command, args []string) error {
	slug := args[0]

	h, err := home.New(homeDir)
	if err != nil {
		return err
	}
	dir := book.NewDir(h.BooksPath(), slug)

	gloss, err := glossary.Load(dir.GlossaryPath())
	if err != nil {
		return fmt.Errorf("load glossary: %w", err)
	}

	switch {
	case glossaryAdd != "":
		entry, err := parseGlossaryAdd(glossaryAdd)
		if err != nil {
			return err
		}
		if _, err := gloss.Add([]glossary.Entry{entry}, glossary.ModeReplace); err != nil {
			return fmt.Errorf("add entry: %w", err)
		}
		if err := gloss.Persist(); err != nil {
			return fmt.Errorf("save glossary: %w", err)
		}
		fmt.Printf("added %s -> %s (%s)\n", entry.SourceTerm, entry.TargetTerm, entry.Category)
		return nil

	case glossaryRemove != "":
		removed, err := gloss.Remove(glossaryRemove)
		if err != nil {
			return fmt.Errorf("remove entry: %w", err)
		}
		if err := gloss.Persist(); err != nil {
			return fmt.Errorf("save glossary: %w", err)
		}
		if removed {
			fmt.Printf("removed %s\n", glossaryRemove)
		} else {
			fmt.Printf("%s was not in the glossary\n", glossaryRemove)
		}
		return nil

	default:
		for _, e := range gloss.InsertionOrder() {
			fmt.Printf("%-24s %-24s %-12s %s\n", e.SourceTerm, e.TargetTerm, e.Category, e.Notes)
		}
		return nil
	}
}

func parseGlossaryAdd(spec string) (glossary.Entry, error) {
	eq := strings.Index(spec, "=")
	if eq < 0 {
		return glossary.Entry{}, fmt.Errorf("--add must be \"source=target:category\", got %q", spec)
	}
	source := spec[:eq]
	rest := spec[eq+1:]

	target := rest
	category := glossary.CategoryGeneral
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		target = rest[:colon]
		category = glossary.Category(rest[colon+1:])
		if !category.Valid() {
			return glossary.Entry{}, fmt.Errorf("unknown category %q", category)
		}
	}
	if source == "" || target == "" {
		return glossary.Entry{}, fmt.Errorf("--add must be \"source=target:category\", got %q", spec)
	}
	return glossary.Entry{SourceTerm: source, TargetTerm: target, Category: category}, nil
}
