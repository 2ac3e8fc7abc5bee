package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/rfsensor-sim/internal/config"
	"github.com/signalsfoundry/rfsensor-sim/internal/logging"
	"github.com/signalsfoundry/rfsensor-sim/internal/observability"
	"github.com/signalsfoundry/rfsensor-sim/internal/sim"
)

// Options are the command-line settings. Zero values defer to the scenario.
type Options struct {
	ConfigPath  string
	Duration    time.Duration
	Tick        time.Duration
	Accelerated bool
	RealTime    bool
	MetricsAddr string
	Workers     int
}

func main() {
	var opts Options
	flag.StringVar(&opts.ConfigPath, "config", "configs/scenario.yaml", "path to the scenario YAML file")
	flag.DurationVar(&opts.Duration, "duration", 0, "simulated time to run (default: scenario duration)")
	flag.DurationVar(&opts.Tick, "tick", 0, "frame interval (default: scenario tick)")
	accelerated := flag.Bool("accelerated", true, "run frames back to back instead of at wall-clock pace")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	flag.IntVar(&opts.Workers, "workers", 0, "components updated concurrently per phase (default: scenario workers)")
	flag.Parse()

	// only an explicit -accelerated overrides the scenario mode
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "accelerated" {
			opts.Accelerated = *accelerated
			opts.RealTime = !*accelerated
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options, out io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)

	log := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}.WithEnv())
	ctx, log = logging.WithRunLogger(ctx, log)

	tracing, err := observability.InitTracing(ctx, tracingConfig(cfg.Tracing, opts.ConfigPath), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracing.ShutdownWithTimeout(context.Background())

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(opts.MetricsAddr, collector, log)
	if metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	world, err := sim.NewWorld(cfg,
		sim.WithLogger(log),
		sim.WithMetrics(collector),
		sim.WithTracer(tracing.Tracer()),
	)
	if err != nil {
		return err
	}
	defer world.Close()

	var next time.Time
	world.OnFrame(func(simTime time.Time) {
		if next.IsZero() {
			next = world.Clock().StartTime.Add(time.Second)
		}
		if simTime.Before(next) {
			return
		}
		next = next.Add(time.Second)
		printSummary(out, world)
	})

	err = world.Run(ctx, cfg.Simulation.Duration)
	printSummary(out, world)
	return err
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.Duration > 0 {
		cfg.Simulation.Duration = opts.Duration
	}
	if opts.Tick > 0 {
		cfg.Simulation.Tick = opts.Tick
	}
	if opts.Workers > 0 {
		cfg.Simulation.Workers = opts.Workers
	}
	switch {
	case opts.Accelerated:
		cfg.Simulation.Mode = "accelerated"
	case opts.RealTime:
		cfg.Simulation.Mode = "realtime"
	}
}

func tracingConfig(tc config.TracingConfig, scenario string) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     tc.Enabled,
		ServiceName: tc.ServiceName,
		Exporter:    strings.ToLower(tc.Exporter),
		Endpoint:    tc.Endpoint,
		Output:      tc.Output,
		SampleRatio: tc.SampleRatio,
		Attributes:  map[string]string{"rfsim.scenario": scenario},
	}.WithEnv()
}

// printSummary writes one table of live tracks per track manager.
func printSummary(out io.Writer, world *sim.World) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "t=%s\n", world.Clock().Elapsed())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MANAGER\tTRACK\tTARGET\tRANGE_KM\tBEARING_DEG\tELEV_DEG\tSN_DB\tAGE_S\tUPDATES")
	for _, m := range world.TrackManagers() {
		for _, tr := range m.Tracks() {
			rng := "-"
			if !tr.AngleOnly() {
				rng = fmt.Sprintf("%.2f", tr.Range/1000)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%d\n",
				m.Name(), tr.ID, tr.TargetID, rng,
				degrees(tr.Bearing), degrees(tr.Elevation), tr.SN, tr.Age, tr.Updates,
			)
		}
	}
	_ = tw.Flush()
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
