package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/blockflow/internal/api"
	"github.com/rendis/blockflow/internal/logging"
	"github.com/rendis/blockflow/internal/store"
	bfmcp "github.com/rendis/blockflow/pkg/mcp"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, closeStore, err := a.openEditor(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := bfmcp.NewBlockflowServer(bfmcp.BlockflowServerDeps{
				Editor:  svc,
				Version: version,
				Logger:  a.logger,
			})
			a.logger.Info("mcp server listening on stdio", slog.String("db_path", a.cfg.DBPath))
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newHTTPCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the editor API and the MCP streamable transport over HTTP",
		Long: `http serves the REST API under /api and MCP under /mcp.
On SIGHUP the settings are reloaded: log level, allowed origins and layout
spacing apply immediately; listen address and database path need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runHTTP(cmd)
		},
	}
	cmd.Flags().String("listen-addr", "", "TCP listen address (default :4200)")
	return cmd
}

func (a *app) runHTTP(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := a.buildHandler(st)
	if err != nil {
		return err
	}
	live := newLiveHandler(h)
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           live,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Open event streams would otherwise hold Shutdown until the timeout.
		a.changeHub().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				a.reload(cmd, st, live)
			}
		}
	})
	return g.Wait()
}

// buildHandler wires the API and the MCP transport for the current config.
func (a *app) buildHandler(st store.Store) (http.Handler, error) {
	svc, err := a.storeEditor(st)
	if err != nil {
		return nil, err
	}
	apiSrv := api.NewServer(api.Deps{
		Editor:         svc,
		Hub:            a.changeHub(),
		Logger:         a.logger,
		AllowedOrigins: a.cfg.AllowedOrigins,
	})
	mcpSrv := bfmcp.NewBlockflowServer(bfmcp.BlockflowServerDeps{
		Editor:  svc,
		Version: version,
		Logger:  a.logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiSrv.Handler())
	mux.Handle("/mcp", mcpSrv.HTTPHandler())
	return mux, nil
}

// reload re-reads the settings and applies what can change at runtime.
func (a *app) reload(cmd *cobra.Command, st store.Store, live *liveHandler) {
	next, err := loadConfig(a.settingsFile, cmd.Flags())
	if err != nil {
		a.logger.Error("reload failed", slog.String("error", err.Error()))
		return
	}
	diff := diffConfigs(a.cfg, next)
	for _, field := range diff.RestartNeeded {
		a.logger.Warn("setting change needs a restart", slog.String("field", field))
	}
	if diff.LogLevelChanged {
		level, err := logging.ParseLevel(next.LogLevel)
		if err != nil {
			a.logger.Error("reload failed", slog.String("error", err.Error()))
			return
		}
		a.logLevel.Set(level)
	}

	// Restart-only fields keep their running values.
	next.ListenAddr, next.DBPath = a.cfg.ListenAddr, a.cfg.DBPath
	a.cfg = next
	if !diff.OriginsChanged && !diff.LayoutChanged {
		a.logger.Info("configuration reloaded")
		return
	}
	h, err := a.buildHandler(st)
	if err != nil {
		a.logger.Error("rebuild handler failed", slog.String("error", err.Error()))
		return
	}
	live.Swap(h)
	a.logger.Info("configuration reloaded", slog.Bool("handler_rebuilt", true))
}

// liveHandler is an http.Handler whose target can be replaced while serving.
type liveHandler struct {
	current atomic.Pointer[http.Handler]
}

func newLiveHandler(h http.Handler) *liveHandler {
	l := &liveHandler{}
	l.Swap(h)
	return l
}

func (l *liveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*l.current.Load()).ServeHTTP(w, r)
}

// Swap replaces the underlying handler atomically.
func (l *liveHandler) Swap(h http.Handler) {
	l.current.Store(&h)
}
