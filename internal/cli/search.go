package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var (
	searchText   string
	searchFolder string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run the retrieval pipeline without the model",
	Long: `Search the corpus with the quality-adaptive hybrid retriever and print the
evidence it would hand to the model.

Examples:
  docqa search -q "vacation policy"
  docqa search -q "revenue" --folder finance --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().StringVarP(&searchFolder, "folder", "f", "", "restrict to a folder name, path or glob")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

type searchOutput struct {
	Status        string               `json:"status"`
	Strategy      string               `json:"strategy"`
	Attempts      int                  `json:"attempts"`
	Quality       float64              `json:"quality"`
	Confidence    float64              `json:"confidence"`
	Intent        domain.Intent        `json:"intent,omitempty"`
	UniqueSources int                  `json:"unique_sources"`
	Warning       string               `json:"warning,omitempty"`
	Message       string               `json:"message,omitempty"`
	Suggestions   []string             `json:"suggestions,omitempty"`
	Snippets      []domain.Snippet     `json:"snippets,omitempty"`
	Listing       []domain.FolderGroup `json:"listing,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd.Context(), GetRootDir(), GetConfig(), GetLogger(), engineOptions{})
	if err != nil {
		return err
	}
	defer eng.Close()

	res := eng.adaptive.Retrieve(cmd.Context(), domain.SearchRequest{Query: searchText, Folder: searchFolder})
	o := res.Outcome
	out := searchOutput{
		Status:        o.Status.String(),
		Strategy:      res.Strategy,
		Attempts:      res.Iterations,
		Quality:       res.QualityScore,
		Confidence:    res.Confidence,
		Intent:        o.Analysis.Intent,
		UniqueSources: o.UniqueSources,
		Warning:       o.Warning,
		Message:       o.Message,
		Suggestions:   o.Suggestions,
		Snippets:      o.Snippets,
		Listing:       o.Listing,
	}
	if searchJSON {
		return printJSON(cmd, out)
	}

	w := cmd.OutOrStdout()
	switch {
	case o.Status == domain.OutcomeError:
		return fmt.Errorf("search failed: %s", o.Message)
	case o.Status == domain.OutcomeEmpty:
		fmt.Fprintln(w, o.Message)
		if len(o.Suggestions) > 0 {
			fmt.Fprintln(w, "Suggestions:")
			for _, s := range o.Suggestions {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
		return nil
	case len(o.Listing) > 0:
		for _, g := range o.Listing {
			fmt.Fprintf(w, "%s/ (%d files)\n", g.Folder, len(g.Files))
			for _, f := range g.Files {
				fmt.Fprintf(w, "  %s\n", f)
			}
		}
		return nil
	}

	fmt.Fprintf(w, "Found %d snippets from %d sources (strategy %s, %d attempts, quality %.2f)\n\n",
		len(o.Snippets), o.UniqueSources, res.Strategy, res.Iterations, res.QualityScore)
	if o.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n\n", o.Warning)
	}
	for i, s := range o.Snippets {
		fmt.Fprintf(w, "--- [%d] %s#%d (relevance: %.2f) ---\n", i+1, s.SourcePath, s.ChunkIndex, s.Relevance)
		text := s.Snippet
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintln(w, text)
		fmt.Fprintln(w)
	}
	return nil
}
