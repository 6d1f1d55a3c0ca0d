package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/blockflow/internal/convert"
	"github.com/rendis/blockflow/internal/editor"
	"github.com/rendis/blockflow/internal/logging"
	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/internal/streaming"
)

// app carries the state shared by every subcommand once the configuration
// is loaded.
type app struct {
	settingsFile string
	cfg          Config
	logger       *slog.Logger
	logLevel     *slog.LevelVar
	logOut       io.Writer
	hub          *streaming.MemoryHub
}

func newRootCmd() *cobra.Command {
	a := &app{logOut: os.Stderr}

	root := &cobra.Command{
		Use:           "blockflow",
		Short:         "Convert, lay out and validate block-based workflow definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.settingsFile, "config", "", "settings file (default ~/.blockflow/settings.json)")
	root.PersistentFlags().String("db-path", "", "database path (default ~/.blockflow/blockflow.db)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(a),
		newHTTPCmd(a),
		newConvertCmd(a),
		newUpgradeCmd(a),
		newValidateCmd(a),
		newDiagramCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newListCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.settingsFile, cmd.Flags())
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logLevel = new(slog.LevelVar)
	a.logLevel.Set(level)
	a.logger = slog.New(logging.NewCorrelationHandler(
		slog.NewTextHandler(a.logOut, &slog.HandlerOptions{Level: a.logLevel}),
	))
	return nil
}

// newEditor builds an editor without persistence.
func (a *app) newEditor() (*editor.Service, error) {
	return editor.New(editor.Deps{
		Layout: a.cfg.layoutOptions(),
		IDs:    convert.UUIDs(),
		Logger: a.logger,
	})
}

// openStore opens the configured database and migrates it.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := a.cfg.DBPath
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "://") {
		dsn = "file:" + dsn
	}
	st, err := store.NewLibSQLStore(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// storeEditor builds an editor persisting to st with the current layout
// settings.
func (a *app) storeEditor(st store.Store) (*editor.Service, error) {
	return editor.New(editor.Deps{
		Store:  st,
		Hub:    a.changeHub(),
		Layout: a.cfg.layoutOptions(),
		IDs:    convert.UUIDs(),
		Logger: a.logger,
	})
}

// changeHub returns the process-wide change event hub, shared by every
// handler rebuilt on reload.
func (a *app) changeHub() *streaming.MemoryHub {
	if a.hub == nil {
		a.hub = streaming.NewMemoryHub()
	}
	return a.hub
}

// openEditor opens the database and builds an editor on top. The returned
// func closes the database.
func (a *app) openEditor(ctx context.Context) (*editor.Service, func(), error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := a.storeEditor(st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, func() { _ = st.Close() }, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
