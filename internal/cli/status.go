package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/opwatcher/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the indexer's persisted position",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfg.Database.URL == "" {
		slog.Error("status requires database.url to be configured")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := postgres.NewDepositRepo(db)

	lastBlock, lastTxHash, err := repo.LastIndexed(ctx)
	if err != nil {
		slog.Error("Failed to read last indexed deposit", "error", err)
		os.Exit(1)
	}
	count, err := repo.Count(ctx)
	if err != nil {
		slog.Error("Failed to count deposits", "error", err)
		os.Exit(1)
	}

	if count == 0 {
		fmt.Println("deposits table is empty; the fetcher will start from the SystemConfig start block")
		return
	}

	fmt.Printf("deposits:           %d\n", count)
	fmt.Printf("last indexed block: %d\n", lastBlock)
	fmt.Printf("last l1 tx hash:    %s\n", lastTxHash)
}
