package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry [id-pattern]",
	Short: "Re-render entities with missing or invalid cached images",
	Long: `Re-render every matching manifest entity that has no cached image or a
cached image failing validation. Entities that exhausted their retries are
skipped. Renders run in concurrent batches with a pause between batches;
interrupting the command stops it at the next pause.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}
	return a.retry(ctx, cmd.OutOrStdout(), manifestPath, pattern)
}

func (a *app) retry(ctx context.Context, out io.Writer, manifest, pattern string) error {
	m, err := a.loadManifest(manifest)
	if err != nil {
		return err
	}
	entities, err := m.Filter(pattern)
	if err != nil {
		return err
	}

	report, err := a.coord.RetryFailedCaches(ctx, entities)
	fmt.Fprintf(out, "Candidates: %d\nSkipped:    %d\nBatches:    %d\nStarted:    %d\n",
		report.Candidates, report.Skipped, report.Batches, report.Started)
	if err != nil {
		return fmt.Errorf("retry interrupted: %w", err)
	}

	missing := 0
	for _, e := range entities {
		if !a.cache.Exists(e.ID, e.CacheVariant()) {
			missing++
		}
	}
	if missing > 0 {
		fmt.Fprintf(out, "Still missing: %d\n", missing)
	}
	return nil
}
