package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/config"
	"github.com/sagarc03/sluice/filesystem"
	sluicehttp "github.com/sagarc03/sluice/http"
	"github.com/sagarc03/sluice/proxy"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start serving. Without TLS the listener speaks HTTP/1.1 and cleartext
HTTP/2 (prior knowledge or upgrade); with --cert and --key it negotiates
HTTP/2 over TLS.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "listen port (env: SLUICE_SERVER_PORT)")
	serveCmd.Flags().String("mode", "static", "server mode: static, spa, proxy (env: SLUICE_SERVER_MODE)")
	serveCmd.Flags().String("root", "./public", "directory served in static and spa modes (env: SLUICE_STATIC_ROOT)")
	serveCmd.Flags().String("cert", "", "TLS certificate file (env: SLUICE_SERVER_TLS_CERT)")
	serveCmd.Flags().String("key", "", "TLS key file (env: SLUICE_SERVER_TLS_KEY)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	mode, err := cfg.Mode()
	if err != nil {
		return fmt.Errorf("parse server mode: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlerConfig := sluicehttp.HandlerConfig{
		Mode:                    mode,
		RedirectStatus:          cfg.Static.RedirectStatus,
		DirectoryRedirectStatus: cfg.Static.DirectoryRedirectStatus,
		RangeWindow:             cfg.Static.RangeWindow,
		MaxBodySize:             cfg.Static.MaxBodySize,
		HighWaterMark:           cfg.Stream.HighWaterMark,
		CloseTimeout:            cfg.Stream.CloseTimeout,
		HandlerWarnAfter:        cfg.Stream.HandlerWarnAfter,
		CORS:                    cfg.CORS,
		Logger:                  slog.Default(),
	}

	var backends sluicehttp.StreamHandler
	if mode == sluice.ModeProxy {
		router := proxy.NewRouter(cfg.Backends(),
			proxy.WithLogger(slog.Default()),
			proxy.WithDialTimeout(cfg.Proxy.DialTimeout),
		)
		defer func() {
			if err := router.Close(); err != nil {
				slog.Warn("close backend connections", "err", err)
			}
		}()

		router.Connect(ctx)
		backends = router
	} else {
		root, err := os.OpenRoot(cfg.Static.Root)
		if err != nil {
			return fmt.Errorf("open static root: %w", err)
		}
		defer func() { _ = root.Close() }()

		handlerConfig.FileSystem = filesystem.NewFileStorage(root)

		if cfg.Static.ContentTable != "" {
			table, err := sluice.LoadContentTable(cfg.Static.ContentTable)
			if err != nil {
				return err
			}
			handlerConfig.ContentTable = table
		}
	}

	handler := sluicehttp.NewHandler(&handlerConfig, backends).Router()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo),
	}

	if cfg.Server.TLS.Enabled() {
		server.Handler = handler
		if err := http2.ConfigureServer(server, &http2.Server{}); err != nil {
			return fmt.Errorf("configure http2: %w", err)
		}
	} else {
		server.Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("starting server", "addr", addr, "mode", mode, "tls", cfg.Server.TLS.Enabled())

	if cfg.Server.TLS.Enabled() {
		err = server.ListenAndServeTLS(cfg.Server.TLS.Cert, cfg.Server.TLS.Key)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
