package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/sqlmission"
	"github.com/tuannm99/sqlmission/internal"
	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/metrics"
	"github.com/tuannm99/sqlmission/server/missionhttp"
	"github.com/tuannm99/sqlmission/server/missionwire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sqlmission-server",
		Short: "Serve SQL missions over missionwire",
		Long: `sqlmission-server hands every connection its own copy of the mission
tables. Learners run statements against it and get feedback on how their
query differs from the expected one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			log := cfg.NewLogger(os.Stderr)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	f.String("addr", "", "missionwire listen address")
	f.String("http-addr", "", "HTTP listen address for health, metrics and grading (empty disables)")
	f.Bool("debug", false, "debug logging")
	f.Duration("idle-timeout", 0, "close connections idle this long (0 disables)")
	f.Bool("strict-where", false, "reject WHERE/HAVING conditions the engine cannot evaluate")
	f.String("seed", "", "YAML seed file (empty uses the built-in tables)")
	f.Bool("watch-seed", false, "reload the seed file when it changes")
	f.Bool("compare-join", false, "grade the JOIN clause too")
	f.String("log-level", "", "log level (debug|info|warn|error)")
	f.String("log-format", "", "log format (text|json)")
	return cmd
}

// run serves until ctx is done or one of the servers fails.
func run(ctx context.Context, cfg *internal.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	seeds, err := catalog.NewSeedSource(cfg.Engine.SeedFile, log)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}

	opts := []sqlmission.Option{
		sqlmission.WithStrictWhere(cfg.Engine.StrictWhere),
		sqlmission.WithCompareJoin(cfg.Feedback.CompareJoin),
		sqlmission.WithMetrics(m),
	}

	log.Info("server: starting",
		"app", cfg.AppName,
		"addr", cfg.Server.Addr,
		"http_addr", cfg.Server.HTTPAddr,
		"seed", cfg.Engine.SeedFile,
		"strict_where", cfg.Engine.StrictWhere,
	)
	start := time.Now()

	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return missionwire.ListenAndServe(egctx, missionwire.ServerConfig{
			Addr:           cfg.Server.Addr,
			IdleTimeout:    cfg.Server.IdleTimeout,
			Seeds:          seeds,
			SessionOptions: opts,
			Metrics:        m,
			Logger:         log,
		})
	})

	if cfg.Server.HTTPAddr != "" {
		hs := missionhttp.New(missionhttp.Config{
			Addr:           cfg.Server.HTTPAddr,
			Seeds:          seeds,
			SessionOptions: opts,
			CompareJoin:    cfg.Feedback.CompareJoin,
			Metrics:        m,
			Gatherer:       reg,
			Logger:         log,
		})
		eg.Go(func() error { return hs.ListenAndServe(egctx) })
	}

	if cfg.Engine.WatchSeed && cfg.Engine.SeedFile != "" {
		eg.Go(func() error {
			// a broken watcher should not take the servers down
			if err := seeds.Watch(egctx); err != nil {
				log.Error("server: seed watcher stopped", "err", err)
			}
			return nil
		})
	}

	err = eg.Wait()
	log.Info("server: stopped", "uptime", time.Since(start).Round(time.Second))
	return err
}
