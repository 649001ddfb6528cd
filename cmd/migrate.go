package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-annotator/internal/config"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Creates or upgrades the annotation schema of the configured database.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	db, err := openStore(ctx, &cfg.Database, false)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrateStore(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if len(applied) == 0 {
		fmt.Println("Database schema is up to date")
		return nil
	}
	fmt.Printf("Applied %d migrations\n", len(applied))
	return nil
}
