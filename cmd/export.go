package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/face-annotator/internal/annotation"
	"github.com/kozaktomas/face-annotator/internal/config"
	"github.com/kozaktomas/face-annotator/internal/database/sqlstore"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored annotations as CSV",
	Long: `Writes one CSV row per annotated image: the annotation header
(reviewer, movie, cluster, status, label, processing time) followed by the
image tag, its status and trajectory. Writes to stdout unless --output is set.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	output := mustGetString(cmd, "output")

	db, err := openStore(ctx, &cfg.Database, false)
	if err != nil {
		return err
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := annotation.ExportCSV(ctx, sqlstore.NewAnnotationRepository(db), w)
	if err != nil {
		return fmt.Errorf("failed to export annotations: %w", err)
	}

	if output != "" {
		fmt.Printf("Exported %d rows to %s\n", n, output)
	}
	return nil
}
