package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/devblac/multisig-watch/internal/config"
	"github.com/devblac/multisig-watch/internal/consensus"
	"github.com/devblac/multisig-watch/internal/engine"
	"github.com/devblac/multisig-watch/internal/health"
	"github.com/devblac/multisig-watch/internal/logging"
	"github.com/devblac/multisig-watch/internal/metrics"
	"github.com/devblac/multisig-watch/internal/sink"
	"github.com/devblac/multisig-watch/internal/source/evm"
	"github.com/devblac/multisig-watch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagStatus  string
	flagMetrics bool
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Run a single cycle and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log notifications instead of sending them")
	runCmd.Flags().StringVar(&flagStatus, "status", "", "Status/health HTTP address (e.g., :3000)")
	runCmd.Flags().BoolVar(&flagMetrics, "metrics", false, "Expose /metrics on the status server")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch Safe contracts and notify on executed transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithLevel(logLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		timings, err := cfg.Global.Timings()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Global.Checkpoint.Backend, cfg.Global.Checkpoint.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var mtr *metrics.Metrics
		if flagMetrics {
			mtr = metrics.Init()
		}

		pool := evm.NewPool(evm.DialRPC)
		defer pool.Close()

		resolver := newResolver(pool, cfg, timings, mtr, log)

		decoder, err := evm.NewDecoder()
		if err != nil {
			return err
		}
		sender, err := buildSender(cfg.Notifier)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		dispatcher := engine.NewDispatcher(sender, cfg.Global.ExplorerURL, timings.SendDelay, flagDryRun, mtr, log)

		cycle, err := engine.NewCycle(engine.Deps{
			Watchlist:  cfg,
			Resolver:   resolver,
			Clients:    pool,
			Fetcher:    evm.NewFetcher(decoder, timings.ScanTimeout, log),
			Store:      store,
			Dispatcher: dispatcher,
			Metrics:    mtr,
			Log:        log,
		},
			engine.WithMaxDrift(cfg.Global.MaxDrift),
			engine.WithScanDelay(timings.ScanDelay),
		)
		if err != nil {
			return err
		}

		if flagStatus != "" {
			rpcChecker := health.NewRPCChecker(func() ([]string, error) {
				wl, err := cfg.LoadWatchlist()
				return wl.Endpoints, err
			}, resolver)
			statusSrv := health.Serve(flagStatus, health.Checker{
				DBPing:     store.Ping,
				RPCPing:    rpcChecker.Ping,
				Checkpoint: store.Load,
				Metrics:    flagMetrics,
			})
			log.Info("status server enabled", "addr", flagStatus, "metrics", flagMetrics)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, statusSrv)
			}()
		} else if flagMetrics {
			log.Warn("--metrics has no effect without --status")
		}

		sched := engine.NewScheduler(cycle, timings.PollInterval, mtr, log)
		log.Info("watcher started",
			"poll_interval", timings.PollInterval,
			"notifier", cfg.Notifier.Type,
			"checkpoint", cfg.Global.Checkpoint.Backend,
			"dry_run", flagDryRun,
		)

		if flagOnce {
			_, err := sched.Tick(ctx)
			if engine.Skipped(err) {
				return nil
			}
			return err
		}
		err = sched.Run(ctx)
		log.Info("watcher stopped")
		return err
	},
}

func newResolver(clients consensus.ClientSource, cfg *config.Config, timings config.Timings, mtr *metrics.Metrics, log *slog.Logger) *consensus.Resolver {
	opts := []consensus.Option{
		consensus.WithTimeout(timings.ProbeTimeout),
		consensus.WithTolerance(cfg.Global.HeightTolerance),
		consensus.WithLogger(log),
	}
	if mtr != nil {
		opts = append(opts, consensus.WithObserver(mtr))
	}
	return consensus.NewResolver(clients, opts...)
}

func buildSender(n config.Notifier) (sink.Sender, error) {
	switch strings.ToLower(n.Type) {
	case "telegram":
		return sink.NewTelegramSender(n.APIURL, n.BotToken, n.ChatID)
	case "slack":
		return sink.NewSlackSender(n.WebhookURL, n.Template)
	case "teams":
		return sink.NewTeamsSender(n.WebhookURL, n.Template)
	case "webhook":
		return sink.NewWebhookSender(n.URL, n.Method, n.Template, nil)
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", n.Type)
	}
}
