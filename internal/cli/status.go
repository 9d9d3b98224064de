package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint completion for every dataset",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	b, err := openBackend()
	if err != nil {
		slog.Error("Failed to open checkpoint backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = b.Close()
	}()

	ctx := context.Background()
	repo := b.Store.Checkpoints()

	datasets, err := repo.Datasets(ctx)
	if err != nil {
		slog.Error("Failed to list datasets", "error", err)
		os.Exit(1)
	}
	if len(datasets) == 0 {
		fmt.Println("No checkpoints stored yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DATASET\tGROUPS\tUNITS\tFAILED\tUPDATED")

	for _, name := range datasets {
		groups, err := repo.Load(ctx, name)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%s\tunreadable: %v\t\t\t\n", name, err)
			continue
		}

		var units, failed int
		var updated time.Time
		for _, g := range groups {
			units += len(g.Outcomes)
			failed += len(g.FailedKeys())
			if g.UpdatedAt.After(updated) {
				updated = g.UpdatedAt
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
			name, len(groups), units, failed, updated.Format(time.RFC3339))
	}
	_ = w.Flush()
}
