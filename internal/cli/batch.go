package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docqa/internal/usecase"
)

var (
	batchConcurrency int
	batchOutput      string
)

var batchCmd = &cobra.Command{
	Use:   "batch [questions.txt]",
	Short: "Answer a file of questions, one per line",
	Long: `Answer every non-empty line of the input file and write one JSON object per
question, in input order, with the answer and its diagnostics.

Examples:
  docqa batch questions.txt -o answers.jsonl
  docqa batch questions.txt --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 2, "questions answered in parallel")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output file (default stdout)")
}

type batchLine struct {
	Question    string              `json:"question"`
	Answer      string              `json:"answer"`
	Diagnostics usecase.Diagnostics `json:"diagnostics"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	questions, err := readQuestions(args[0])
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions in %s", args[0])
	}

	eng, err := newEngine(cmd.Context(), GetRootDir(), GetConfig(), GetLogger(), engineOptions{withAgent: true, serveMetrics: true})
	if err != nil {
		return err
	}
	defer eng.Close()

	var out io.Writer = cmd.OutOrStdout()
	if batchOutput != "" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	results := make([]batchLine, len(questions))
	progress := newProgressReporter("Answering", cmd.ErrOrStderr())
	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(1, batchConcurrency))
	for i, q := range questions {
		g.Go(func() error {
			res := eng.query.Query(ctx, q, nil)
			results[i] = batchLine{Question: q, Answer: res.Answer, Diagnostics: res.Diagnostics}

			mu.Lock()
			done++
			progress.Update(done, len(questions))
			mu.Unlock()
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions: %w", err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" && !strings.HasPrefix(q, "#") {
			questions = append(questions, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}
