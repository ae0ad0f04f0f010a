// Command mangavaultd runs the manga/novel aggregation daemon: it
// syncs configured plugin repositories, loads and hot-reloads scraper
// plugins, and periodically schedules stale-item updates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ramkansal/mangavault/internal/capability"
	"github.com/ramkansal/mangavault/internal/config"
	"github.com/ramkansal/mangavault/internal/obslog"
	"github.com/ramkansal/mangavault/internal/registry"
	"github.com/ramkansal/mangavault/internal/repoindex"
	"github.com/ramkansal/mangavault/internal/scheduler"
	"github.com/ramkansal/mangavault/internal/storage"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mangavaultd v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load configuration: %v", err)
	}

	log := obslog.New(cfg.LogLevel, cfg.LogPretty)

	if err := os.MkdirAll(cfg.PluginsFolder, 0o755); err != nil {
		fatal("failed to create plugins folder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	repoLog := obslog.Component(log, "repoindex")
	syncer := repoindex.NewSyncer(cfg.PluginsFolder, 0, repoLog)

	repos := make([]repoindex.RepoConfig, len(cfg.Repositories))
	for i, r := range cfg.Repositories {
		repos[i] = repoindex.RepoConfig{URL: r.URL, Whitelist: r.Whitelist, Blacklist: r.Blacklist}
	}
	syncer.SyncAll(ctx, repos)

	host := capability.NewHost(capability.HostConfig{
		UserAgent:      capability.DefaultUserAgent,
		FlareSolverURL: cfg.FlareSolverURL,
		WebDriverURL:   cfg.WebDriverURL,
	})
	defer host.Close()

	reg := registry.New(obslog.Component(log, "registry"))
	defer reg.Close()

	watcher := registry.NewWatcher(cfg.PluginsFolder, reg, host, obslog.Component(log, "watcher"))
	if err := watcher.ScanOnce(ctx); err != nil {
		log.Error().Err(err).Msg("initial plugin scan failed")
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := watcher.Run(watchCtx); err != nil {
			log.Error().Err(err).Msg("plugin watcher stopped")
		}
	}()

	store := storage.NewMemory()

	sched := scheduler.New(store, reg, scheduler.Config{
		MaxConcurrency:   cfg.MaxConcurrency,
		SearchInterval:   cfg.SearchInterval,
		CooldownDuration: cfg.CooldownDuration,
		QueueMaxSize:     cfg.QueueMaxSize,
		QueueMaxFail:     cfg.QueueMaxFail,
		AgingInterval:    cfg.AgingInterval,
	}, obslog.Component(log, "scheduler"))

	if err := sched.Start(ctx); err != nil {
		fatal("failed to start scheduler: %v", err)
	}

	sig := make(chan os.Signal, 1)
	registerSignals(sig)

	log.Info().Str("plugins_folder", cfg.PluginsFolder).Msg("mangavaultd started")

	<-sig
	log.Info().Msg("shutdown signal received, draining")
	sched.Stop()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "mangavaultd: fatal: %s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
