package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-annotator",
	Short: "A service for reviewing face clusters extracted from movies",
	Long: `Face Annotator serves machine-generated clusters of face detections
to human reviewers. Reviewers confirm or reject the grouped face images,
assign an actor label to each cluster, and the time they spend is tracked
per reviewer.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
