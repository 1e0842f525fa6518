package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/feed"
	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/store"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve saved sessions over HTTP with a WebSocket feed",
		Long: `Serve the session history as JSON and push catalog changes to
WebSocket clients.

Routes:
  GET    /ws                  live feed
  GET    /api/health          liveness
  GET    /api/status          channel and client status
  GET    /api/sessions        list (?type=, ?date=, ?search=, ?limit=)
  GET    /api/sessions/{id}   one session
  DELETE /api/sessions/{id}   delete a session

With the file store, edits made by other processes (for example a scan
running in another terminal) are picked up and pushed to clients.`,
		Example: `  # Default address from config (127.0.0.1:8787)
  proxiscan serve

  # Listen on all interfaces
  proxiscan serve --addr :8787`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				g.cfg.Serve.Addr = addr
			}
			return runServe(cmd, g)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, st, err := openCatalog(ctx, g.cfg)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if fs, ok := st.(*store.FileStore); ok {
		err := fs.Watch(ctx, func() {
			if err := catalog.Load(context.WithoutCancel(ctx)); err != nil {
				logging.Warn("Failed to reload sessions", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}

	srv := feed.New(feed.Options{
		Addr:    g.cfg.Serve.Addr,
		Catalog: catalog,
	})
	defer srv.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d sessions on http://%s (Ctrl+C to stop)\n", catalog.Count(), g.cfg.Serve.Addr)
	return srv.Start(ctx)
}
