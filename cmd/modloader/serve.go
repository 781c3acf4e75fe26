package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/modloader/internal/api"
	"github.com/seantiz/modloader/internal/store"
	"github.com/seantiz/modloader/internal/watch"
)

var (
	serveBundles []string
	serveRequire []string
	serveNoWatch bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspection API and the resource directory",
		Long: `Start a loader, expose its registry over HTTP and serve the resource
directory under /resources/. Files changed below the resource directory are
evicted from the registry so the next request loads them again.`,
		Args: cobra.NoArgs,
		RunE: serve,
	}
)

func init() {
	serveCmd.Flags().StringArrayVar(&serveBundles, "bundle", nil, "stored bundle to preload at startup (repeatable)")
	serveCmd.Flags().StringArrayVar(&serveRequire, "require", nil, "module to load at startup (repeatable)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not evict modules when their files change")
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	logger := stderrLogger(cfg)

	logger.Info("modloader: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"resource_root", cfg.ResourceRoot,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rt, err := newRuntime(cfg, logger, &store.FetchLog{Store: db, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	for _, name := range serveBundles {
		b, err := db.GetBundle(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("bundle %q is not stored", name)
		}
		if err != nil {
			return err
		}
		n := rt.Preload(b.Preload(), b.Name)
		logger.Info("bundle preloaded", "bundle", b.Name, "modules", n)
	}

	srv := api.NewServer(cfg.ListenAddr, rt, db, cfg.ResourceRoot, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx) })
	if !serveNoWatch {
		w, err := watch.New(cfg.ResourceRoot, rt, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}
	for _, id := range serveRequire {
		g.Go(func() error {
			if _, err := rt.Require(ctx, id); err != nil {
				logger.Warn("startup module failed", "module", id, "error", err)
				return nil
			}
			logger.Info("startup module ready", "module", id)
			return nil
		})
	}
	return g.Wait()
}
