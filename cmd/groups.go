package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/grouping"
	"github.com/mamage/photo-similarity/internal/query"
	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Print groups of visually similar photos as JSON",
	Long: `Group the photos of one project by embedding similarity and print the
groups as JSON.

Examples:
  # Connected components above the default threshold
  photo-similarity groups --project-id 7

  # Strict groups where every pair is similar
  photo-similarity groups --project-id 7 --mode clique --threshold 0.85`,
	RunE: runGroups,
}

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Print scored photo pairs of a project as JSON",
	RunE:  runPairs,
}

var similarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Print the photos most similar to one photo as JSON",
	RunE:  runSimilar,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(similarCmd)

	for _, c := range []*cobra.Command{groupsCmd, pairsCmd, similarCmd} {
		c.Flags().Int64("project-id", 0, "Project to query")
		c.Flags().String("model", constants.DefaultModel, "Embedding model")
	}

	groupsCmd.Flags().Float64("threshold", constants.DefaultThreshold, "Minimum cosine similarity for an edge")
	groupsCmd.Flags().Int("min-size", constants.DefaultMinSize, "Minimum photos per group")
	groupsCmd.Flags().String("mode", constants.DefaultMode, "Grouping mode (connected or clique)")
	groupsCmd.Flags().Float64("min-internal", 0, "Drop groups whose weakest pair scores below this")
	groupsCmd.Flags().String("order", grouping.OrderIndex, "Seed order (index or degree)")

	pairsCmd.Flags().Float64("min-score", constants.DefaultPairsMinScore, "Minimum pair score")

	similarCmd.Flags().Int64("photo-id", 0, "Photo to compare against")
	similarCmd.Flags().Int("top-k", constants.DefaultTopK, "Number of results")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	service := query.NewService(query.Config{Loader: a.loader, Logger: a.logger})
	resp, err := service.Groups(ctx, query.GroupsRequest{
		ProjectID:   mustGetInt64(cmd, "project-id"),
		ModelName:   mustGetString(cmd, "model"),
		Threshold:   mustGetFloat64(cmd, "threshold"),
		MinSize:     mustGetInt(cmd, "min-size"),
		Mode:        mustGetString(cmd, "mode"),
		MinInternal: mustGetFloat64(cmd, "min-internal"),
		Order:       mustGetString(cmd, "order"),
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runPairs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	service := query.NewService(query.Config{Loader: a.loader, Logger: a.logger})
	resp, err := service.Pairs(ctx, query.PairsRequest{
		ProjectID: mustGetInt64(cmd, "project-id"),
		ModelName: mustGetString(cmd, "model"),
		MinScore:  mustGetFloat64(cmd, "min-score"),
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resolver, err := a.resolver(ctx)
	if err != nil {
		return err
	}
	service := query.NewService(query.Config{
		Loader:       a.loader,
		Resolver:     resolver,
		Extractors:   a.extractor,
		DefaultModel: a.cfg.Embedding.DefaultModel,
		Logger:       a.logger,
	})
	resp, err := service.Similar(ctx, query.SimilarRequest{
		PhotoID:   mustGetInt64(cmd, "photo-id"),
		TopK:      mustGetInt(cmd, "top-k"),
		ModelName: mustGetString(cmd, "model"),
		ProjectID: mustGetInt64(cmd, "project-id"),
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
