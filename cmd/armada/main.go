package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/basket/armada/internal/callback"
	"github.com/basket/armada/internal/config"
	"github.com/basket/armada/internal/inventory"
	otelPkg "github.com/basket/armada/internal/otel"
	"github.com/basket/armada/internal/persistence"
	"github.com/basket/armada/internal/playbook"
	"github.com/basket/armada/internal/runner"
	"github.com/basket/armada/internal/shared"
	_ "github.com/basket/armada/internal/strategy"
	"github.com/basket/armada/internal/telemetry"
	"github.com/basket/armada/internal/vars"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

RUN A PLAYBOOK:
  %s -playbook site.yml -inventory hosts.yml

SUBCOMMANDS:
  %s history [-limit N]       List recent runs from the history store
  %s history -run <id>        Show per-task results for one run

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  ARMADA_HOME             Data directory (default: ~/.armada)
`)
}

func main() {
	playbookPath := flag.String("playbook", "", "playbook file to run")
	inventoryPath := flag.String("inventory", "", "inventory file")
	configPath := flag.String("config", "", "config file (default: $ARMADA_HOME/config.yaml)")
	forks := flag.Int("forks", 0, "worker pool size (overrides config)")
	strategyName := flag.String("strategy", "", "default strategy for plays that name none")
	verbose := flag.Bool("verbose", false, "log at debug level")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *forks > 0 {
		cfg.Forks = *forks
	}
	if *strategyName != "" {
		cfg.Strategy = *strategyName
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			return
		case "history":
			os.Exit(runHistoryCommand(ctx, cfg, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			os.Exit(2)
		}
	}

	if *playbookPath == "" || *inventoryPath == "" {
		printUsage()
		os.Exit(2)
	}

	os.Exit(run(ctx, cfg, *playbookPath, *inventoryPath))
}

func run(ctx context.Context, cfg *config.Config, playbookPath, inventoryPath string) int {
	logger, logCloser, err := telemetry.NewLogger(cfg.DataDir, cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 2
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	runID := shared.NewRunID()
	ctx = shared.WithRunID(ctx, runID)
	logger = logger.With("run_id", runID)

	// Log-level edits to the config file take effect mid-run; everything
	// else binds at startup.
	watchConfig(ctx, cfg, logger)

	provider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		logger.Error("telemetry_init_failed", slog.String("error", err.Error()))
		return 2
	}
	defer provider.Shutdown(context.Background())

	pb, err := playbook.Load(playbookPath)
	if err != nil {
		logger.Error("playbook_load_failed", slog.String("error", err.Error()))
		return 2
	}
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		logger.Error("inventory_load_failed", slog.String("error", err.Error()))
		return 2
	}

	// Plays that named no strategy pick up the configured default.
	if cfg.Strategy != "" {
		for _, play := range pb.Plays {
			if play.Strategy == playbook.DefaultStrategy {
				play.Strategy = cfg.Strategy
			}
		}
	}

	stats := callback.NewStatsCallback()
	callbacks := callback.Multi{
		callback.NewLogCallback(logger),
		stats,
	}

	var store *persistence.Store
	if cfg.History.Enabled {
		store, err = persistence.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("history_unavailable", slog.String("error", err.Error()))
		} else {
			defer store.Close()
			if err := store.BeginRun(ctx, runID, playbookPath); err != nil {
				logger.Warn("history_unavailable", slog.String("error", err.Error()))
			} else {
				callbacks = append(callbacks, persistence.NewRecorder(store, runID, logger))
			}
		}
	}

	if cfg.Telemetry.Enabled {
		metrics, err := otelPkg.NewMetrics(provider.Meter)
		if err != nil {
			logger.Warn("metrics_unavailable", slog.String("error", err.Error()))
		} else {
			callbacks = append(callbacks, otelPkg.NewMetricsCallback(metrics))
		}
	}

	tqm := runner.New(ctx, inv, runner.Options{
		Forks:       cfg.Forks,
		Callback:    callbacks,
		Logger:      logger,
		ModulePaths: cfg.ModulePaths,
		Tracer:      provider.Tracer,
	})
	defer tqm.Shutdown()

	pe := runner.NewPlaybookExecutor(inv, tqm)
	runErr := pe.Run(ctx, pb, &vars.MapManager{})

	callbacks.PlaybookOnStats(stats.Stats)
	printRecap(stats.Stats)

	if store != nil {
		status := persistence.RunStatusSucceeded
		if runErr != nil {
			status = persistence.RunStatusFailed
		}
		if err := store.CompleteRun(ctx, runID, status); err != nil {
			logger.Warn("history_unavailable", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		logger.Error("run_failed", slog.String("error", runErr.Error()))
		return 1
	}
	return 0
}

// watchConfig reloads the log level when the config file changes. Forks and
// strategy stay bound for the life of the run; workers never resize
// mid-play.
func watchConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	path := filepath.Join(cfg.DataDir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return
	}
	w := config.NewWatcher(path, logger)
	if err := w.Start(ctx); err != nil {
		logger.Warn("config_watch_failed", slog.String("error", err.Error()))
		return
	}
	go func() {
		for range w.Events() {
			reloaded, err := config.Load(path)
			if err != nil {
				logger.Warn("config_reload_failed", slog.String("error", err.Error()))
				continue
			}
			telemetry.SetLevel(reloaded.LogLevel)
			logger.Info("config_reloaded", slog.String("log_level", reloaded.LogLevel))
		}
	}()
}

func printRecap(stats *callback.Stats) {
	fmt.Println("PLAY RECAP " + strings.Repeat("*", 69))
	for _, host := range stats.HostNames() {
		ok, changed, failures, unreachable, skipped := stats.Summarize(host)
		fmt.Printf("%-26s : ok=%-4d changed=%-4d unreachable=%-4d failed=%-4d skipped=%-4d\n",
			host, ok, changed, unreachable, failures, skipped)
	}
}

func runHistoryCommand(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	runID := fs.String("run", "", "show task results for one run")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := cfg.History.Path
	if path == "" {
		path = filepath.Join(cfg.DataDir, "history.db")
	}
	store, err := persistence.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "history:", err)
		return 2
	}
	defer store.Close()

	if *runID != "" {
		results, err := store.RunResults(ctx, *runID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "history:", err)
			return 2
		}
		for _, rec := range results {
			fmt.Printf("%-20s %-26s %-26s %-12s changed=%v %s\n",
				rec.Play, rec.Host, rec.Task, rec.Status, rec.Changed, rec.Msg)
		}
		return 0
	}

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "history:", err)
		return 2
	}
	for _, rec := range runs {
		finished := "-"
		if rec.FinishedAt != nil {
			finished = rec.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-38s %-30s %-10s started=%s finished=%s\n",
			rec.ID, rec.Playbook, rec.Status,
			rec.StartedAt.Format("2006-01-02 15:04:05"), finished)
	}
	return 0
}
