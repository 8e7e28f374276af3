package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novelforge/novelforge/internal/book"
	"github.com/novelforge/novelforge/internal/convert"
	"github.com/novelforge/novelforge/internal/home"
	"github.com/novelforge/novelforge/internal/progress"
)

var (
	assembleFormat   string
	assembleLanguage string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <book-slug>",
	Short: "Assemble a fully translated book into a distributable ebook",
	Long: `Build the given book's translated chapters into an EPUB, or into
AZW3/MOBI/PDF via the calibre ebook-convert binary. Every chapter must
already be translated.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().StringVar(&assembleFormat, "format", "epub", "epub, azw3, mobi, or pdf")
	assembleCmd.Flags().StringVar(&assembleLanguage, "language", "en", "target-language ISO 639-1 code for EPUB metadata")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	slug := args[0]
	ctx := cmd.Context()

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

	format := convert.Format(assembleFormat)
	if !format.Valid() {
		return fmt.Errorf("unknown --format %q: must be epub, azw3, mobi, or pdf", assembleFormat)
	}
	if format != convert.FormatEPUB {
		if err := convert.CheckConverterAvailable(""); err != nil {
			return err
		}
	}

	assembler := convert.NewAssembler(assembleLanguage)
	outPath, err := assembler.Assemble(ctx, dir, snap, format)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	fmt.Printf("wrote %s\n", outPath)
	return nil
}
