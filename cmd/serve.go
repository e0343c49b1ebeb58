package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scriptserv/internal/admin"
	"github.com/conneroisu/scriptserv/internal/config"
	"github.com/conneroisu/scriptserv/internal/dispatch"
	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/server"
	"github.com/conneroisu/scriptserv/internal/session"
	"github.com/conneroisu/scriptserv/internal/version"
	"github.com/conneroisu/scriptserv/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the server",
	Long: `Start serving the document root.

Static files are streamed, template files are executed and the route table
sends matching paths to named workers. With admin.enabled set, a second
listener offers /health and an /events websocket stream.

Examples:
  scriptserv serve                       # Serve ./webroot on :5721
  scriptserv serve --root ./site -p 8080 # Serve another root on another port
  SCRIPTSERV_SERVER_BACKLOG=64 scriptserv serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	AddStandardFlags(serveCmd, "server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FileDir)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve runs every component until ctx is cancelled, then shuts them down
// in reverse order.
func serve(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	d, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	var hub *admin.Hub
	if cfg.Admin.Enabled {
		hub = admin.NewHub(logger)
	}

	sessions := session.NewManager(cfg.Session.Timeout, session.WithSweepHook(func(evicted int) {
		logger.Debug(ctx, "Expired sessions evicted", "count", evicted)
		if hub != nil {
			hub.Publish(admin.Event{Type: admin.EventSessionSwept, Count: evicted})
		}
	}))
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	if cfg.Documents.Watch {
		fw, err := watchTemplates(ctx, cfg, d, hub, logger)
		if err != nil {
			logger.Warn(ctx, err, "Template watcher disabled")
		} else {
			defer fw.Stop()
		}
	}

	srv := server.New(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Domain:         cfg.Server.Domain,
		Workers:        cfg.Server.Workers,
		Backlog:        cfg.Server.Backlog,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ReusePort:      cfg.Server.ReusePort,
		CookieName:     cfg.Session.CookieName,
		Encoding:       cfg.Documents.Encoding,
	}, d, sessions, logger)

	if hub != nil {
		adm := admin.New(cfg.Admin.Addr, srv, hub, logger)
		go func() {
			if err := adm.ListenAndServe(ctx); err != nil {
				logger.Error(ctx, err, "Admin server stopped")
			}
		}()
	}

	logger.Info(ctx, "Starting scriptserv",
		"version", version.GetShortVersion(),
		"addr", cfg.Server.Addr(),
		"root", d.Root().Dir(),
		"workers", cfg.Server.Workers,
		"handlers", d.Workers())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// watchTemplates drops cached templates as their files change.
func watchTemplates(ctx context.Context, cfg *config.Config, d *dispatch.Dispatcher, hub *admin.Hub, logger logging.Logger) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(100*time.Millisecond, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.ExtensionFilter(cfg.Documents.TemplateExtensions...))
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, ev := range events {
			if !d.Cache().Invalidate(ev.Path) {
				continue
			}
			rel, _ := d.Root().Rel(ev.Path)
			logger.Debug(ctx, "Template invalidated", "path", rel, "change", ev.Type.String())
			if hub != nil {
				hub.Publish(admin.Event{Type: admin.EventTemplateInvalidated, Path: rel})
			}
		}
		return nil
	})

	if err := fw.AddRecursive(d.Root().Dir()); err != nil {
		fw.Stop()
		return nil, err
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}
