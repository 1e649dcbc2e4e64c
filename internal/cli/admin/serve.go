package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/finknow/internal/api/handlers"
	"github.com/cloo-solutions/finknow/internal/api/middleware"
	"github.com/cloo-solutions/finknow/internal/jobs"
	"github.com/cloo-solutions/finknow/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the finknow API server on the specified port.

Identical uploads are detected with a content hash cache kept in a local file
(FINKNOW_CACHE_PATH). Run a single server per cache file: two processes ingesting
the same new file at the same time may both store it.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup (pgvector backend)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	defer initTelemetry(cfg)()

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	st, err := buildStack(ctx, cfg, stackOptions{needOpenAI: true, migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer st.Close()

	var reconcileWorker *jobs.Worker
	if cfg.ReconcileInterval > 0 {
		reconcileWorker = jobs.NewWorker("reconcile", jobs.NewReconcileProcessor(st.documents), cfg.ReconcileInterval)
		go reconcileWorker.Start(ctx)
		log.Printf("reconcile worker started (every %s)", cfg.ReconcileInterval)
	}

	if st.archive == nil {
		log.Println("document archive disabled (FINKNOW_S3_ENDPOINT not set)")
	}

	routerCfg := server.RouterConfig{
		MaxBodyBytes:    cfg.MaxUploadBytes,
		DocumentHandler: handlers.NewDocumentHandler(st.ingestion, st.documents),
		QueryHandler:    handlers.NewQueryHandler(st.retrieval, st.answers),
	}
	if cfg.HasAuth() {
		routerCfg.AuthValidator = middleware.StaticKey{Key: cfg.APIKey}
	} else {
		log.Println("warning: FINKNOW_API_KEY not set, the API is unauthenticated")
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if reconcileWorker != nil {
		reconcileWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
