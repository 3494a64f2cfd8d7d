package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/toolfilter/internal/infra/storage/postgres"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired tool categories from the postgres backend",
	Run:   runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		fmt.Println("prune requires database.url")
		os.Exit(1)
	}

	dbCfg := cfg.Database
	if dbCfg.Driver == "" {
		dbCfg.Driver = postgres.DriverLibPQ
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, dbCfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	deleted, err := postgres.NewCategoryRepo(db).DeleteExpired(ctx, time.Now())
	if err != nil {
		slog.Error("Failed to prune categories", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d expired tool categories\n", deleted)
}
