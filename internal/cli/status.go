package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/bpxfeeder/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the chain state summary and the local tip",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("status needs database.url")
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

	summary, err := store.ChainState().Get(ctx)
	if err != nil {
		slog.Error("Failed to read chain state", "error", err)
		os.Exit(1)
	}
	tip, err := store.Blocks().Tip(ctx)
	if err != nil {
		slog.Error("Failed to read local tip", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintf(w, "NETWORK\t%s\n", summary.NetworkName)
	_, _ = fmt.Fprintf(w, "PEAK\t%d\n", summary.PeakHeight)
	_, _ = fmt.Fprintf(w, "LOCAL TIP\t%d\t%s\n", tip.Height, tip.Hash)
	_, _ = fmt.Fprintf(w, "EPOCH\t%d\n", summary.EpochHeight)
	_, _ = fmt.Fprintf(w, "DIFFICULTY\t%d\t(prev %d)\n", summary.DifficultyCurr, summary.DifficultyPrev)
	_, _ = fmt.Fprintf(w, "NETSPACE\t%s\t(24h ago %s)\n", summary.NetspaceCurr, summary.NetspacePrev)
	_, _ = fmt.Fprintf(w, "SUB-SLOT\t%ds\n", summary.SubSlotTime)
	_ = w.Flush()
}
