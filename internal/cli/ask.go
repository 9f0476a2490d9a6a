package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/usecase"
)

var (
	askHistoryFile string
	askSaveHistory bool
	askJSON        bool
	askVerbose     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long: `Ask a question. The model searches the corpus with its tools and answers
from what it finds. Pass --history to continue an earlier conversation; follow-up
questions are never served from or written to the cache.

Examples:
  docqa ask "What is the Q1 revenue?"
  docqa ask --history chat.json --save-history "And Q2?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askHistoryFile, "history", "", "JSON file with previous conversation turns")
	askCmd.Flags().BoolVar(&askSaveHistory, "save-history", false, "write the updated conversation back to --history")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output answer and diagnostics as JSON")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print tool calls and sources")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askSaveHistory && askHistoryFile == "" {
		return errors.New("--save-history requires --history")
	}

	history, err := readHistory(askHistoryFile)
	if err != nil {
		return err
	}

	eng, err := newEngine(cmd.Context(), GetRootDir(), GetConfig(), GetLogger(), engineOptions{withAgent: true, serveMetrics: true})
	if err != nil {
		return err
	}
	defer eng.Close()

	result := eng.query.Query(cmd.Context(), strings.Join(args, " "), history)

	if askSaveHistory {
		if err := writeHistory(askHistoryFile, result.History); err != nil {
			return err
		}
	}

	if askJSON {
		return printJSON(cmd, result)
	}
	printAnswer(cmd, result, askVerbose)
	return nil
}

func printAnswer(cmd *cobra.Command, result usecase.QueryResult, verbose bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Answer)
	if !verbose {
		return
	}

	d := result.Diagnostics
	fmt.Fprintf(out, "\n--- %s in %s (cached: %v, iterations: %d, confidence: %.2f) ---\n",
		d.Outcome, formatDuration(d.Duration), d.Cached, d.Iterations, d.Confidence)
	for _, tc := range d.ToolCalls {
		fmt.Fprintf(out, "  [%d] %s %s -> %s\n", tc.Iteration, tc.ToolName, tc.CanonicalArgs, tc.Status)
	}
	if len(d.Sources) > 0 {
		fmt.Fprintf(out, "Sources:\n")
		for _, s := range d.Sources {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
}

func readHistory(path string) ([]domain.Turn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var turns []domain.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("invalid history file %s: %w", path, err)
	}
	return turns, nil
}

func writeHistory(path string, turns []domain.Turn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}
