package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/toolfilter/internal/control"
	"github.com/vietddude/toolfilter/internal/core/domain"
)

var (
	resolveSource string
	resolveDesc   string
	resolveWait   time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [tool]...",
	Short: "Resolve the category of one or more tools",
	Long: `Resolve prints the category and filtering decision for each tool. With
enrichment enabled, unknown tools are classified and the results written to the
cache before the command exits (bounded by --wait).`,
	Args: cobra.MinimumNArgs(1),
	Run:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveSource, "source", "cli", "backend server the tools come from")
	resolveCmd.Flags().StringVar(&resolveDesc, "description", "", "tool description passed to the classifier")
	resolveCmd.Flags().DurationVar(&resolveWait, "wait", 10*time.Second, "how long to wait for enrichment")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize tool filter", "error", err)
		os.Exit(1)
	}

	eng := app.Engine()
	def := domain.ToolDefinition{Description: resolveDesc}
	decisions := make(map[string]bool, len(args))
	for _, name := range args {
		decisions[name] = eng.ShouldInclude(name, resolveSource, def)
		eng.ResolveCategory(name, resolveSource, def)
	}

	deadline := time.Now().Add(resolveWait)
	for eng.Stats().QueueDepth > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if err := app.Stop(ctx); err != nil {
		slog.Warn("Shutdown incomplete", "error", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TOOL\tCATEGORY\tSOURCE\tCONFIDENCE\tINCLUDED")
	for _, name := range args {
		e, ok := app.Cache().Get(name)
		if !ok {
			e = domain.CacheEntry{Category: domain.CategoryOther}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%t\n", name, e.Category, e.Source, e.Confidence, decisions[name])
	}
	_ = w.Flush()
}
