package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/bpxfeeder/internal/control"
)

var rewindCmd = &cobra.Command{
	Use:   "rewind [height]",
	Short: "Delete stored blocks above height so the next pass re-imports them",
	Args:  cobra.ExactArgs(1),
	Run:   runRewind,
}

func init() {
	rootCmd.AddCommand(rewindCmd)
}

func runRewind(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || height < -1 {
		fmt.Printf("Invalid block height: %s\n", args[0])
		os.Exit(1)
	}

	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("rewind needs database.url")
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := control.OpenStorage(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = st.Close()
	}()

	store, err := st.Open(ctx)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	n, err := store.Blocks().DeleteAbove(ctx, height)
	if err != nil {
		slog.Error("Failed to rewind", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Deleted %d blocks above height %d\n", n, height)
}
