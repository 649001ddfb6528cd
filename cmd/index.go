package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-annotator/internal/config"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the cluster index",
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Build the cluster index and report per-movie statistics",
	Long: `Builds the cluster index exactly as serve does and prints, for every
movie that loaded, the number of clusters, trajectories and displayed images.
Movies that failed to load are listed with the reason. The command fails if
any movie failed.`,
	RunE: runIndexCheck,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexCheckCmd)

	indexCheckCmd.Flags().String("data-dir", "", "Directory with <movie_id>-data directories (overrides DATA_DIR)")
	indexCheckCmd.Flags().Int("items-per-trajectory", 0, "Images sampled per trajectory (overrides ITEMS_PER_TRAJECTORY)")
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("data-dir") {
		cfg.Index.DataDir = mustGetString(cmd, "data-dir")
	}
	if n := mustGetInt(cmd, "items-per-trajectory"); n > 0 {
		cfg.Index.ItemsPerTrajectory = n
	}
	// Collect every failure instead of stopping at the first.
	cfg.Index.Strict = false

	index, failed, err := loadIndex(context.Background(), &cfg.Index)
	if err != nil {
		return err
	}

	fmt.Printf("\n%-10s %10s %14s %10s %8s  %s\n", "MOVIE", "CLUSTERS", "TRAJECTORIES", "IMAGES", "FPS", "MOVIE FILE")
	for _, id := range index.MovieIDs() {
		movie, _ := index.Movie(id)
		var trajectories, images int
		for _, c := range movie.Clusters {
			trajectories += c.NTrajectories
			images += len(c.Samples)
		}
		moviePath := movie.MoviePath
		if moviePath == "" {
			moviePath = "-"
		}
		fmt.Printf("%-10d %10d %14d %10d %8.2f  %s\n", id, len(movie.Clusters), trajectories, images, movie.FPS, moviePath)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d movies failed to load", len(failed))
	}
	fmt.Println("\nAll movies loaded")
	return nil
}
