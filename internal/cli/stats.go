package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/toolfilter/internal/control"
)

var statsByCategory bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the persisted tool categories",
	Run:   runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsByCategory, "by-category", false, "group counts by category and source")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	backend, err := control.OpenBackend(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open cache backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	if statsByCategory && backend.Postgres != nil {
		summaries, err := backend.Postgres.Summarize(ctx)
		if err != nil {
			slog.Error("Failed to summarize categories", "error", err)
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "CATEGORY\tSOURCE\tTOOLS")
		for _, s := range summaries {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", s.Category, s.Source, s.Count)
		}
		_ = w.Flush()
		return
	}

	records, err := backend.Repo.Load(ctx)
	if err != nil {
		slog.Error("Failed to load categories", "error", err)
		os.Exit(1)
	}

	now := time.Now()
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	slices.Sort(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TOOL\tCATEGORY\tSOURCE\tCONFIDENCE\tEXPIRES\tLEGACY")
	for _, name := range names {
		r := records[name]
		e := r.Normalize(now, cfg.Filtering.Enrichment.CacheTTL)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%t\n",
			name, e.Category, e.Source, e.Confidence, e.ExpiresAt().Format(time.RFC3339), r.IsLegacy())
	}
	_ = w.Flush()
}
