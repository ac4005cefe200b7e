// Command spyglass runs the application observability recorder.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"time"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/home"
	"spyglass/internal/probe/httpprobe"
	"spyglass/internal/probe/logprobe"
	"spyglass/internal/probe/schedprobe"
	"spyglass/internal/probe/synthetic"
	"spyglass/internal/pruner"
	"spyglass/internal/storage"
	"spyglass/internal/storage/memory"
	storageredis "spyglass/internal/storage/redis"
	storagesqlite "spyglass/internal/storage/sqlite"
	"spyglass/internal/sysmetrics"
	"spyglass/internal/tags"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(baseHandler)

	rootCmd := &cobra.Command{
		Use:   "spyglass",
		Short: "Application observability recorder",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					if err := http.ListenAndServe(pprofAddr, nil); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060). WARNING: exposes CPU/memory profiles and goroutine dumps; bind to loopback only, never expose publicly")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the spyglass recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts serveOptions
			opts.store, _ = cmd.Flags().GetString("store")
			opts.data, _ = cmd.Flags().GetString("data")
			opts.redisAddr, _ = cmd.Flags().GetString("redis-addr")
			opts.addr, _ = cmd.Flags().GetString("addr")
			opts.flushInterval, _ = cmd.Flags().GetDuration("flush-interval")
			opts.bufferSize, _ = cmd.Flags().GetInt("buffer-size")
			opts.retention, _ = cmd.Flags().GetDuration("retention")
			opts.pruneInterval, _ = cmd.Flags().GetDuration("prune-interval")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return runServe(ctx, logger, opts)
		},
	}

	addStoreFlags(serveCmd)
	serveCmd.Flags().String("addr", ":4564", "listen address (host:port)")
	serveCmd.Flags().Duration("flush-interval", collector.DefaultInterval, "time between buffer flushes")
	serveCmd.Flags().Int("buffer-size", collector.DefaultBufferSize, "buffered entries that trigger an early flush")
	serveCmd.Flags().Duration("retention", pruner.DefaultMaxAge, "how long entries are kept")
	serveCmd.Flags().Duration("prune-interval", pruner.DefaultInterval, "time between retention sweeps")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the pipeline against synthetic traffic",
		Long: `Drives the full pipeline against an in-memory store with a synthetic
traffic generator, then prints what was recorded. Stop with ctrl-c.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, _ := cmd.Flags().GetFloat64("rate")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return runDemo(ctx, logger, rate)
		},
	}

	demoCmd.Flags().Float64("rate", synthetic.DefaultRate, "entries per second")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than a cutoff and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeType, _ := cmd.Flags().GetString("store")
			data, _ := cmd.Flags().GetString("data")
			redisAddr, _ := cmd.Flags().GetString("redis-addr")
			olderThan, _ := cmd.Flags().GetDuration("older-than")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return runPrune(ctx, logger, storeType, data, redisAddr, olderThan)
		},
	}

	addStoreFlags(pruneCmd)
	pruneCmd.Flags().Duration("older-than", pruner.DefaultMaxAge, "delete entries older than this")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, demoCmd, pruneCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addStoreFlags registers the store selection flags shared by serve and
// prune.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "memory", "entry store: memory, sqlite, or redis")
	cmd.Flags().String("data", "", "data directory (default: platform config dir)")
	cmd.Flags().String("redis-addr", "localhost:6379", "redis address (store=redis)")
}

type serveOptions struct {
	store         string
	data          string
	redisAddr     string
	addr          string
	flushInterval time.Duration
	bufferSize    int
	retention     time.Duration
	pruneInterval time.Duration
}

func runServe(ctx context.Context, logger *slog.Logger, opts serveOptions) error {
	repo, closeStore, err := openStore(ctx, logger, opts.store, opts.data, opts.redisAddr)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	c, err := collector.New(collector.Config{
		Repository: repo,
		Tagger:     tags.NewAuto(repo),
		Interval:   opts.flushInterval,
		BufferSize: opts.bufferSize,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	c.Start(ctx)

	pr, err := pruner.New(pruner.Config{
		Repository: repo,
		MaxAge:     opts.retention,
		Interval:   opts.pruneInterval,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := pr.Start(ctx); err != nil {
		return err
	}

	// The recorder's own logs flow through the log probe from here on.
	// Components keep the plain logger: their records must not re-enter
	// the collector they run.
	appLogger := slog.New(logprobe.New(logger.Handler(), c, slog.LevelInfo))

	probe, err := httpprobe.New(httpprobe.Config{Collector: c})
	if err != nil {
		return err
	}

	sched, err := startSelfSampling(ctx, c)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("POST /probe/entries", probe.IngestHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           probe.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var serverWg sync.WaitGroup
	serverWg.Go(func() {
		appLogger.Info("listening", "addr", opts.addr, "store", opts.store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	})

	// Wait for shutdown signal.
	<-ctx.Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("stopping server")
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	serverWg.Wait()

	if err := pr.Stop(); err != nil {
		logger.Error("pruner stop error", "error", err)
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	logger.Info("flushing collector")
	if err := c.Shutdown(shutCtx); err != nil {
		logger.Error("final flush error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func runPrune(ctx context.Context, logger *slog.Logger, storeType, dataDir, redisAddr string, olderThan time.Duration) error {
	repo, closeStore, err := openStore(ctx, logger, storeType, dataDir, redisAddr)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	pr, err := pruner.New(pruner.Config{
		Repository: repo,
		MaxAge:     olderThan,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	n, err := pr.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d entries\n", n)
	return nil
}

// openStore opens the selected entry store. The returned close function
// releases whatever the store holds open.
func openStore(ctx context.Context, logger *slog.Logger, storeType, dataDir, redisAddr string) (storage.Repository, func() error, error) {
	switch storeType {
	case "memory":
		return memory.NewStore(), func() error { return nil }, nil

	case "sqlite":
		hd, err := resolveHome(dataDir)
		if err != nil {
			return nil, nil, err
		}
		if err := hd.EnsureExists(); err != nil {
			return nil, nil, err
		}
		name, err := hd.InstanceName()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("home directory", "path", hd.Root(), "instance", name)
		store, err := storagesqlite.NewStore(hd.EntriesDBPath())
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", redisAddr, err)
		}
		logger.Info("connected to redis", "addr", redisAddr)
		return storageredis.NewStore(client, ""), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type: %q", storeType)
	}
}

// startSelfSampling schedules a recurring job that records the
// recorder's own CPU and memory usage as event entries. Its runs show
// up as schedule entries through the probe listeners.
func startSelfSampling(ctx context.Context, c *collector.Collector) (gocron.Scheduler, error) {
	sp, err := schedprobe.New(schedprobe.Config{Collector: c})
	if err != nil {
		return nil, err
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	sampler := sysmetrics.NewSampler()
	_, err = sched.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			c.Collect(ctx, entry.EventPayload{
				Name: "runtime.sample",
				Payload: map[string]any{
					"cpuPercent":  sampler.CPUPercent(),
					"memoryInuse": sysmetrics.MemoryInuse(),
				},
			})
		}),
		gocron.WithName("runtime-sample"),
		gocron.WithEventListeners(sp.Listeners("every 1m")...),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule runtime sampling: %w", err)
	}

	sched.Start()
	return sched, nil
}

// resolveHome returns a Dir from the flag value, or the platform default.
func resolveHome(flagValue string) (home.Dir, error) {
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	return home.Default()
}
