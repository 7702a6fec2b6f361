package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ans-cli/internal/api"
	"github.com/sells-group/ans-cli/internal/config"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API",
	Long:  "Serves operators, expense history and aggregate statistics from Postgres over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		srv := api.NewServer(api.NewStore(pool), serveOptions(cfg))
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		zap.L().Info("starting server", zap.String("addr", addr))
		return runServer(ctx, addr, srv.Router())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// serveOptions maps the server section onto api.Options.
func serveOptions(c *config.Config) api.Options {
	return api.Options{
		CORSOrigins:     c.Server.CORSOrigins,
		StatsLimit:      c.Server.StatsLimit,
		StatsCacheTTL:   time.Duration(c.Server.StatsCacheTTLSecs) * time.Second,
		DefaultPageSize: c.Server.DefaultPageSize,
		MaxPageSize:     c.Server.MaxPageSize,
	}
}

// runServer serves h on addr until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})
	return g.Wait()
}
