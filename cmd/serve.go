package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/server"
	"github.com/dcmarble/stonesite/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the marketing site",
	Long: `Serve the marketing page, the contact form relay and the gallery.

The server refuses to start without EmailJS credentials. Set them in
.stonesite.yml or through EMAILJS_SERVICE_ID, EMAILJS_TEMPLATE_ID and
EMAILJS_PUBLIC_KEY.

Examples:
  stonesite serve                  # Serve on localhost:8080
  stonesite serve -p 3000          # Serve on another port
  stonesite serve --host 0.0.0.0   # Listen on all interfaces`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	addFlagValidation(serveCmd.Flags(), "port", validatePort)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	store := a.newSessionStore()
	srv, err := server.New(cfg, server.Options{
		Content:  a.content,
		Catalog:  a.catalog,
		Sessions: store,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var fw *watcher.FileWatcher
	if cfg.Gallery.Dir != "" && cfg.Gallery.Watch {
		fw, err = watcher.WatchGallery(a.catalog, watcher.DefaultDebounce, a.logger)
		if err != nil {
			return fmt.Errorf("failed to watch gallery: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			a.logger.Info(gctx, "Signal received", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		return srv.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return store.Run(gctx)
	})

	if fw != nil {
		g.Go(func() error {
			return fw.Run(gctx)
		})
	}

	fmt.Printf("Starting stonesite at http://%s\n", cfg.Addr())

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
