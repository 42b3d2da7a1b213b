// Package cmd implements the tsscheduled command: it loads the daemon and
// schedule configuration, detects the power management hardware and runs the
// reconciliation loop together with the health and metrics endpoints.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/trackIT-Systems/tsscheduled/internal/collector"
	"github.com/trackIT-Systems/tsscheduled/internal/daemon"
	"github.com/trackIT-Systems/tsscheduled/internal/hardware"
	"github.com/trackIT-Systems/tsscheduled/internal/health"
	"github.com/trackIT-Systems/tsscheduled/internal/schedule"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "tsscheduled",
		Short: "Power scheduling daemon for single-board computers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(viper.GetBool("debug"))
			return run(cmd.Context(), viper.GetViper(), cmd.Root().Version, logger)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))
	RootCmd.Flags().String("hardware", "", "Hardware backend (wittypi4, raspberrypi5); detected when empty")
	_ = viper.BindPFlag("hardware.type", RootCmd.Flags().Lookup("hardware"))
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/tsscheduled/")
		viper.AddConfigPath("$HOME/.tsscheduled")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	viper.SetDefault("debug", false)
	viper.SetDefault("daemon.interval", time.Minute)
	viper.SetDefault("schedule.file", "/etc/tsscheduled/schedule.yaml")
	viper.SetDefault("hardware.type", "")
	viper.SetDefault("hardware.i2c.bus", 1)
	viper.SetDefault("hardware.i2c.addr", hardware.DefaultI2CAddr)
	viper.SetDefault("exporter.addr", ":9090")
	viper.SetDefault("health.addr", ":8080")

	viper.SetEnvPrefix("TSSCHEDULED")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Warn("no configuration file found, using defaults", "err", err)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, v *viper.Viper, version string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "version", version)

	sched, err := loadSchedule(v.GetString("schedule.file"), logger.With("component", "schedule"))
	if err != nil {
		return err
	}

	device, err := openHardware(v, logger.With("component", "hardware"))
	if err != nil {
		return err
	}
	defer func() { _ = device.Close() }()

	d := daemon.New(device, sched, v.GetDuration("daemon.interval"), logger.With("component", "daemon"))
	coll := &collector.Collector{Publisher: d.Publisher, Logger: logger.With("component", "collector")}
	prometheus.MustRegister(coll)
	h := health.New(d.Publisher, logger.With("component", "health"))

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", h)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	// the daemon finishing (power-off under way) takes everything else down
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { defer cancel(); return d.Run(ctx) })
	g.Go(func() error { return coll.Run(ctx) })
	g.Go(func() error { return h.Run(ctx) })
	g.Go(func() error { return serve(ctx, v.GetString("health.addr"), healthMux) })
	g.Go(func() error { return serve(ctx, v.GetString("exporter.addr"), metricsMux) })
	return g.Wait()
}

func loadSchedule(path string, logger *slog.Logger) (*schedule.Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schedule file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return schedule.Load(f, logger)
}

func openHardware(v *viper.Viper, logger *slog.Logger) (hardware.PowerManager, error) {
	bus := v.GetInt("hardware.i2c.bus")
	addr := v.GetInt("hardware.i2c.addr")

	hardwareType := v.GetString("hardware.type")
	if hardwareType == "" {
		if hardwareType = hardware.Detect(bus, addr, logger); hardwareType == "" {
			return nil, errors.New("no power management hardware detected")
		}
	}
	device, err := hardware.Open(hardwareType, bus, addr, logger)
	if err != nil {
		return nil, err
	}

	// the WittyPi should power the device back up on its own after a power
	// loss, and give the OS time to halt before cutting power
	if wittyPi, ok := device.(*hardware.WittyPi4); ok {
		if err := wittyPi.SetDefaultOn(true, 1); err != nil {
			logger.Warn("failed to set default-on", "err", err)
		}
		if err := wittyPi.SetPowerCutDelay(25); err != nil {
			logger.Warn("failed to set power-cut delay", "err", err)
		}
	}
	return device, nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
