// Package cmd implements the swipe command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/meigma/swipe"
	"github.com/meigma/swipe/connectivity"
	"github.com/meigma/swipe/internal/config"
)

// app carries state shared by commands for one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger

	registry      *prometheus.Registry
	metricsServer *http.Server
}

var state = &app{v: config.NewViper()}

var rootCmd = &cobra.Command{
	Use:   "swipe",
	Short: "Browse a feed of remote images",
	Long: "Browse a continuous feed of remote images, accepting or rejecting each one.\n" +
		"Judged images never reappear. Images are cached in memory and on disk.",
	SilenceUsage:      true,
	PersistentPreRunE: state.setup,
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return state.teardown(cmd.Context())
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&state.cfgFile, "config", "", "config file (default: ~/.config/swipe/config.yaml)")
	flags.String("cache-dir", "", "image cache directory (default: ~/.cache/swipe/images)")
	flags.String("state-dir", "", "decision database directory (default: ~/.local/share/swipe)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	flags.Int("size-hint", 0, "longest image edge in pixels (0 keeps native size)")

	_ = state.v.BindPFlag("cache.dir", flags.Lookup("cache-dir"))
	_ = state.v.BindPFlag("state.dir", flags.Lookup("state-dir"))
	_ = state.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = state.v.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	_ = state.v.BindPFlag("feed.size_hint", flags.Lookup("size-hint"))
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = config.NewLogger(cfg.Logging, cmd.ErrOrStderr())

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Metrics.Addr != "" {
		a.metricsServer = startMetricsServer(cfg.Metrics.Addr, newMetricsRouter(a.registry, a.logger), a.logger)
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.metricsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.metricsServer.Shutdown(ctx)
}

// openClient builds a client from the loaded configuration. The returned
// function releases it.
func (a *app) openClient(ctx context.Context, extra ...swipe.Option) (*swipe.Client, func(), error) {
	cfg := a.cfg
	opts := []swipe.Option{
		swipe.WithLogger(a.logger),
		swipe.WithMetricsRegisterer(a.registry),
		swipe.WithCacheDir(cfg.Cache.Dir),
		swipe.WithDiskCacheSize(int64(cfg.Cache.DiskSize)), //nolint:gosec // validated size
		swipe.WithMemoryCacheLimits(int64(cfg.Cache.MemorySize), cfg.Cache.MemoryEntries), //nolint:gosec // validated size
		swipe.WithStateDir(cfg.State.Dir),
		swipe.WithTargetDepth(cfg.Feed.TargetDepth),
		swipe.WithMaxAttempts(cfg.Feed.MaxAttempts),
		swipe.WithSizeHint(cfg.Feed.SizeHint),
		swipe.WithDiscoveryEndpoint(cfg.Discovery.Endpoint),
		swipe.WithFetchTimeout(cfg.Fetch.Timeout),
		swipe.WithUserAgent(cfg.Fetch.UserAgent),
	}
	if cfg.Discovery.RateLimit > 0 {
		opts = append(opts, swipe.WithDiscoveryRateLimit(rate.Limit(cfg.Discovery.RateLimit), cfg.Discovery.Burst))
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	if cfg.Connectivity.ProbeAddr != "" {
		mon, err := startMonitor(probeCtx, cfg.Connectivity, connectivity.WithLogger(a.logger))
		if err != nil {
			stopProbe()
			return nil, nil, err
		}
		opts = append(opts, swipe.WithConnectivity(mon))
	}

	c, err := swipe.NewClient(append(opts, extra...)...)
	if err != nil {
		stopProbe()
		return nil, nil, err
	}
	return c, func() {
		stopProbe()
		if err := c.Close(); err != nil {
			a.logger.Warn("close client", "error", err)
		}
	}, nil
}

// startMonitor runs a reachability monitor until ctx ends. The first probe
// happens in the background; the monitor reports online until it completes.
func startMonitor(ctx context.Context, cfg config.ConnectivityConfig, opts ...connectivity.MonitorOption) (*connectivity.Monitor, error) {
	opts = append([]connectivity.MonitorOption{connectivity.WithInterval(cfg.Interval)}, opts...)
	mon, err := connectivity.NewMonitor(cfg.ProbeAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connectivity probe: %w", err)
	}
	go mon.Run(ctx)
	return mon, nil
}
