package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edukit/coursegen/internal/core/checkpoint"
)

var resetCmd = &cobra.Command{
	Use:   "reset [dataset]",
	Short: "Delete a dataset's checkpoint so the next run regenerates it from scratch",
	Args:  cobra.ExactArgs(1),
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	dataset := args[0]

	b, err := openBackend()
	if err != nil {
		slog.Error("Failed to open checkpoint backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = b.Close()
	}()

	mgr := checkpoint.NewManager(b.Store.Checkpoints())
	if err := mgr.Reset(context.Background(), dataset); err != nil {
		slog.Error("Failed to reset dataset", "dataset", dataset, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Checkpoint for dataset %q cleared.\n", dataset)
}
