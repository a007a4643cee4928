package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RezaGemCollection/rezagemcollection-product-search-api/config"
	httpDelivery "github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/delivery/http"
	"github.com/RezaGemCollection/rezagemcollection-product-search-api/internal/infrastructure/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	queryTimeout    = 2 * time.Minute
)

var rootCmd = &cobra.Command{
	Use:   "gemsearch",
	Short: "Product search webhook for the gemstone catalog",
	Long: `gemsearch answers conversational product questions by fuzzy matching
the user's words against the store catalog and replying with a formatted list.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and search API server",
	RunE:  runServe,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer one query from the command line and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
		defer cancel()

		text, err := app.search.BuildResponseText(ctx, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the commerce API catalog into the catalog database",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		count, err := app.syncCatalog(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d products\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, queryCmd, syncCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	metrics.Register()

	logger := app.logger
	logger.Info("starting gemsearch backend",
		zap.String("environment", app.cfg.Server.Environment),
		zap.String("port", app.cfg.Server.Port),
		zap.String("catalog_source", app.cfg.Catalog.Source),
		zap.String("cache_type", app.cfg.Cache.Type),
		zap.Int("display_limit", app.cfg.Matching.DisplayLimit),
		zap.Bool("correction", app.cfg.Matching.EnableCorrection))

	handler := httpDelivery.NewHandler(app.search, logger)
	router := httpDelivery.SetupRouter(app.cfg, handler, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", app.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-cmd.Context().Done():
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// loadConfig is swapped out in tests.
var loadConfig = config.Load
