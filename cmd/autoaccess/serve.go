package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/CanhCl92/AutoAccess/internal/config"
	"github.com/CanhCl92/AutoAccess/internal/debugview"
	"github.com/CanhCl92/AutoAccess/internal/device"
	"github.com/CanhCl92/AutoAccess/internal/engine"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
	"github.com/CanhCl92/AutoAccess/internal/orchestrator"
	"github.com/CanhCl92/AutoAccess/internal/rpcserver"
	"github.com/CanhCl92/AutoAccess/internal/screen"
	"github.com/CanhCl92/AutoAccess/internal/server"
	"github.com/CanhCl92/AutoAccess/internal/store"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture the device screen and serve the HTTP, WebSocket and gRPC health APIs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type deviceStack struct {
	backend screen.Backend
	sink    engine.GestureSink
	display orchestrator.Display
	close   func()
}

func openDevice(c *config.Config) deviceStack {
	if c.CaptureBackend == config.BackendFile {
		slog.Info("using file capture backend; gestures are logged only", "file", c.CaptureFile)
		return deviceStack{
			backend: screen.NewFileBackend(c.CaptureFile),
			sink:    device.LogSink{},
			display: device.StaticDisplay{Size: c.PhysSize, Insets: c.Insets},
			close:   func() {},
		}
	}

	adb := device.New(device.Config{
		Path:           c.ADBPath,
		Serial:         c.ADBSerial,
		CommandTimeout: c.ADBTimeout,
		Insets:         c.Insets,
		PhysOverride:   c.PhysSize,
		DisplayTTL:     c.DisplayTTL,
	})
	var sink engine.GestureSink = adb
	if c.DryRun {
		sink = device.LogSink{}
	}
	return deviceStack{
		backend: device.NewScreencap(adb),
		sink:    sink,
		display: adb,
		close:   func() { _ = adb.Close() },
	}
}

func openMacroStore(ctx context.Context, c *config.Config) (store.MacroStore, error) {
	if c.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set; macros are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pg, nil
}

func runServe(ctx context.Context, c *config.Config) error {
	dev := openDevice(c)
	defer dev.close()

	src := screen.NewSource(dev.backend, screen.Options{
		Rate:                c.CaptureRate,
		ContentRectInterval: c.ContentRectInterval,
		SceneDistance:       c.SceneDistance,
	})
	defer src.Close()
	go src.Run(ctx)

	templates, err := store.NewTemplates(c.TemplateDir)
	if err != nil {
		return err
	}
	macros, err := openMacroStore(ctx, c)
	if err != nil {
		return err
	}
	// ctx may already be cancelled when closing
	defer macros.Close(context.Background())

	mgr := orchestrator.New(orchestrator.Deps{
		Frames:    src,
		Display:   dev.display,
		Sink:      dev.sink,
		Templates: templates,
		Macros:    macros,
		Cache:     matcher.NewCache(c.TemplateCacheSize),
		Recorder:  debugview.NewRecorder(c.DebugMaxWidth),
		Engine: engine.Options{
			PollInterval:  c.PollInterval,
			LocateTimeout: c.LocateTimeout,
		},
	})
	defer mgr.Stop()

	srv := server.New(mgr)
	defer srv.Close()

	// No write timeout: /run?wait= and WebSocket connections stay open.
	httpServer := &http.Server{
		Addr:              c.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	lis, err := net.Listen("tcp", c.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.GRPCAddr, err)
	}
	health := rpcserver.New(src.Ready, rpcserver.DefaultRefreshInterval)

	errCh := make(chan error, 2)
	go func() {
		slog.Info("autoaccess starting", "http", c.HTTPAddr, "grpc", c.GRPCAddr, "backend", c.CaptureBackend)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	health.Stop()

	slog.Info("shutdown complete")
	return runErr
}
