package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"docqa/config"
)

var importCmd = &cobra.Command{
	Use:   "import [file.jsonl]",
	Short: "Load pre-chunked documents into the vector store",
	Long: `Import chunk records produced by an ingestion pipeline. Each line is a JSON
object with text, source_path and optionally id, folder, chunk_index,
total_chunks, mime_type and modified_time (RFC 3339). Records without an id get
a stable one, so re-importing a file replaces its chunks in place. Cached
answers citing an imported source are invalidated.

Examples:
  docqa import chunks.jsonl
  cat chunks.jsonl | docqa import -`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		in = f
	}

	eng, err := newEngine(cmd.Context(), GetRootDir(), GetConfig(), GetLogger(), engineOptions{})
	if err != nil {
		return err
	}
	defer eng.Close()

	progress := newProgressReporter("Importing", cmd.ErrOrStderr())
	result, err := eng.importer.Import(cmd.Context(), in, progress.Update)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	invalidated := 0
	if eng.cache != nil {
		invalidated = eng.cache.InvalidateBySource(cmd.Context(), result.Sources)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nImport complete:\n")
	fmt.Fprintf(w, "  Records read:     %d\n", result.Records)
	fmt.Fprintf(w, "  Chunks imported:  %d\n", result.ChunksImported)
	fmt.Fprintf(w, "  Records skipped:  %d\n", result.Skipped)
	fmt.Fprintf(w, "  Sources touched:  %d\n", len(result.Sources))
	if invalidated > 0 {
		fmt.Fprintf(w, "  Cache entries invalidated: %d\n", invalidated)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	fmt.Fprintf(w, "\nData stored at: %s\n", config.DataPath(GetRootDir()))
	return nil
}
