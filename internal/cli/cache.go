package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage cached answers",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and stored entries",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [source-pattern...]",
	Short: "Drop cached answers citing matching sources",
	Long: `Drop every cached answer whose sources match one of the patterns. Patterns
may be exact paths, directory prefixes or doublestar globs.

Examples:
  docqa cache invalidate finance/q1.md
  docqa cache invalidate 'hr/**/*.pdf'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCacheInvalidate,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached answer",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheInvalidateCmd, cacheClearCmd)
	cacheStatsCmd.Flags().BoolVar(&cacheJSON, "json", false, "output as JSON")
}

type cacheEntryView struct {
	Query       string    `json:"query"`
	Sources     []string  `json:"sources,omitempty"`
	Confidence  float64   `json:"confidence"`
	AccessCount int       `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastAccess  time.Time `json:"last_access"`
}

func openCacheEngine(cmd *cobra.Command) (*engine, error) {
	eng, err := newEngine(cmd.Context(), GetRootDir(), GetConfig(), GetLogger(), engineOptions{})
	if err != nil {
		return nil, err
	}
	if eng.cache == nil {
		eng.Close()
		return nil, fmt.Errorf("the cache is disabled in the configuration")
	}
	return eng, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	eng, err := openCacheEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats := eng.cache.Stats()
	entries := eng.cache.Entries()
	if cacheJSON {
		views := make([]cacheEntryView, len(entries))
		for i, e := range entries {
			views[i] = cacheEntryView{
				Query:       e.Query,
				Sources:     e.Sources,
				Confidence:  e.Confidence,
				AccessCount: e.AccessCount,
				CreatedAt:   e.CreatedAt,
				LastAccess:  e.LastAccess,
			}
		}
		return printJSON(cmd, struct {
			Stats   any              `json:"stats"`
			HitRate float64          `json:"hit_rate"`
			Entries []cacheEntryView `json:"entries"`
		}{stats, stats.HitRate(), views})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Cache backend: %s\n", GetConfig().Cache.Backend)
	fmt.Fprintf(w, "  Entries: %d / %d\n", stats.Size, stats.MaxSize)
	now := time.Now()
	for _, e := range entries {
		fmt.Fprintf(w, "  - %q (hits: %d, confidence: %.2f, age: %s)\n",
			e.Query, e.AccessCount, e.Confidence, formatDuration(now.Sub(e.CreatedAt)))
	}
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	eng, err := openCacheEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	n := eng.cache.InvalidateBySource(cmd.Context(), args)
	fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d cached answers\n", n)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	eng, err := openCacheEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.cache.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
	return nil
}
