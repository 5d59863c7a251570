package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mamage/photo-similarity/internal/backfill"
	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute embeddings for photos that have none",
	Long: `Compute and store image embeddings for every photo that has no embedding
for the selected model yet.

The process can be stopped and resumed - photos that already have an
embedding are skipped. Missing or unreadable images are counted as skipped,
inference or storage failures as errored. A model that cannot be loaded
aborts the run.

Examples:
  # Backfill every project with the default model
  photo-similarity embed

  # One project, at most 500 photos, four workers
  photo-similarity embed --project-id 7 --limit 500 --concurrency 4

  # Another model without pausing between photos
  photo-similarity embed --model mobileclip_s0_image --delay 0`,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().Int64("project-id", 0, "Only backfill this project (0 = all projects)")
	embedCmd.Flags().Int("limit", 0, "Limit number of photos to process (0 = no limit)")
	embedCmd.Flags().String("model", "", "Embedding model (defaults to DEFAULT_MODEL)")
	embedCmd.Flags().Duration("delay", 0, "Pause between photos on each worker (defaults to BACKFILL_DELAY)")
	embedCmd.Flags().Int("concurrency", constants.DefaultBackfillConcurrency, "Number of parallel workers")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := mustGetString(cmd, "model")
	if model == "" {
		model = a.cfg.Embedding.DefaultModel
	}
	delay := a.cfg.Backfill.Delay
	if cmd.Flags().Changed("delay") {
		delay = mustGetDuration(cmd, "delay")
	}

	ext, err := a.extractor(model)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}
	resolver, err := a.resolver(ctx)
	if err != nil {
		return fmt.Errorf("failed to configure image storage: %w", err)
	}

	driver := backfill.NewDriver(a.store, resolver, ext, a.logger)
	opts := backfill.Options{
		ModelName:   model,
		ProjectID:   mustGetInt64(cmd, "project-id"),
		Limit:       mustGetInt(cmd, "limit"),
		Delay:       delay,
		Concurrency: mustGetInt(cmd, "concurrency"),
	}

	out := cmd.OutOrStdout()
	pending, err := driver.Pending(ctx, opts)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "All photos already have embeddings!")
		fmt.Fprintln(out, "processed=0 skipped=0 errored=0")
		return nil
	}
	fmt.Fprintf(out, "Photos to process: %d (model %s)\n\n", len(pending), model)

	bar := progressbar.NewOptions(len(pending),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Computing embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	opts.Progress = func(backfill.Progress) {
		_ = bar.Add(1)
	}

	summary, err := driver.Run(ctx, opts)
	_ = bar.Finish()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "processed=%d skipped=%d errored=%d\n", summary.Processed, summary.Skipped, summary.Errored)

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "Interrupted, run again to resume")
		return nil
	}
	return err
}
