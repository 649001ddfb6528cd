package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-annotator/internal/annotation"
	"github.com/kozaktomas/face-annotator/internal/config"
	"github.com/kozaktomas/face-annotator/internal/constants"
	"github.com/kozaktomas/face-annotator/internal/database/sqlstore"
	"github.com/kozaktomas/face-annotator/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Annotator web server.
The cluster index of every movie in DATA_DIR is built before the server
accepts requests. Annotations are stored in the configured database and
migrations are applied on startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("data-dir", "", "Directory with <movie_id>-data directories (overrides DATA_DIR)")
	serveCmd.Flags().Bool("strict", false, "Refuse to start if any movie fails to load")
}

// applyServeFlags lets explicitly set flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Index.DataDir = mustGetString(cmd, "data-dir")
	}
	if cmd.Flags().Changed("strict") {
		cfg.Index.Strict = mustGetBool(cmd, "strict")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	index, _, err := loadIndex(ctx, &cfg.Index)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, &cfg.Database, true)
	if err != nil {
		return fmt.Errorf("failed to initialize annotation store: %w", err)
	}
	defer db.Close()

	store := sqlstore.NewAnnotationRepository(db)
	resolver := annotation.NewResolver(index, store, annotation.Options{
		PredictionMinP: cfg.Annotation.PredictionMinP,
	})
	server := web.NewServer(cfg, resolver)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Annotator on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
