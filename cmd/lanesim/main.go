package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/lanesim"
	"github.com/iti/lanesim/internal/logging"
	"github.com/iti/lanesim/internal/observability"
	"github.com/iti/rngstream"
	"github.com/prometheus/client_golang/prometheus"
)

// settings collects repeated -set flags
type settings []string

func (s *settings) String() string     { return strings.Join(*s, ",") }
func (s *settings) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	netFile := flag.String("net", "", "network description file (.yaml, .json, or flat text)")
	random := flag.Int("random", 0, "generate a random network with this many nodes instead of reading -net")
	populate := flag.Int("populate", 0, "average number of packets placed on each segment before the run")
	paramFile := flag.String("params", "", "simulation parameter file (.yaml or .json)")
	ticks := flag.Int("ticks", 100, "number of ticks to run")
	period := flag.Float64("period", 0, "virtual seconds between ticks, overrides the parameter file")
	workers := flag.Int("workers", 0, "segments ticked concurrently, overrides the parameter file")
	traceFile := flag.String("trace", "", "write per packet action traces to this file")
	metricsFile := flag.String("metrics", "", "write Prometheus metrics in text format to this file when done")
	tracing := flag.Bool("tracing", false, "export a span per tick to stderr")
	seed := flag.Uint64("seed", defaultSeed, "master seed of every random stream: network generation, populating, routes and sources")
	describe := flag.String("describe", "", "write the final network state to this description file")
	var sets settings
	flag.Var(&sets, "set", "parameter override as name=value, may be repeated")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if err := run(ctx, log, runConfig{
		netFile: *netFile, random: *random, populate: *populate, paramFile: *paramFile,
		sets: sets, ticks: *ticks, period: *period, workers: *workers,
		traceFile: *traceFile, metricsFile: *metricsFile, tracing: *tracing,
		seed: *seed, describe: *describe,
	}); err != nil {
		log.Error(ctx, "simulation failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

// the rngstream package seed; the master seed takes six successive values
// that must stay below the first modulus
const (
	defaultSeed = 12345
	maxSeed     = 4294944443 - 7
)

type runConfig struct {
	netFile     string
	random      int
	populate    int
	paramFile   string
	sets        []string
	ticks       int
	period      float64
	workers     int
	traceFile   string
	metricsFile string
	tracing     bool
	seed        uint64
	describe    string
}

func run(ctx context.Context, log logging.Logger, cfg runConfig) error {
	if (cfg.netFile == "") == (cfg.random == 0) {
		return errors.New("exactly one of -net or -random is required")
	}
	if cfg.seed == 0 || cfg.seed > maxSeed {
		return fmt.Errorf("-seed must be in [1, %d], got %d", maxSeed, cfg.seed)
	}
	// every stream created from here on derives from the seed
	rngstream.SetRngStreamMasterSeed(cfg.seed)

	inputs := []string{}
	if cfg.netFile != "" {
		inputs = append(inputs, cfg.netFile)
	}
	if cfg.paramFile != "" {
		inputs = append(inputs, cfg.paramFile)
	}
	if _, err := lanesim.CheckReadableFiles(inputs); err != nil {
		return err
	}
	outputs := []string{}
	for _, name := range []string{cfg.traceFile, cfg.metricsFile, cfg.describe} {
		if name != "" {
			outputs = append(outputs, name)
		}
	}
	if _, err := lanesim.CheckOutputFiles(outputs); err != nil {
		return err
	}

	params, err := loadParams(cfg)
	if err != nil {
		return err
	}

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.Enabled = tracingCfg.Enabled || cfg.tracing
	shutdown, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		return err
	}

	net, nd, err := buildNetwork(cfg, params, log)
	if err != nil {
		return err
	}
	net.SetMetrics(collector)

	expName := net.Name
	tm := lanesim.CreateTraceManager(expName, cfg.traceFile != "" || params.Trace)
	net.SetTraceManager(tm)

	if cfg.populate > 0 {
		placed, err := net.Populate(cfg.populate)
		if err != nil {
			return err
		}
		log.Info(ctx, "network populated", logging.Int("packets", placed))
	}
	if err := net.Validate(); err != nil {
		return err
	}

	evtMgr := evtm.New()
	sources, err := lanesim.BuildSources(net, nd)
	if err != nil {
		return err
	}
	for _, src := range sources {
		src.Start(evtMgr)
	}
	runner := lanesim.CreateTickRunner(net, cfg.ticks)
	runner.Start(evtMgr)

	started := time.Now()
	evtMgr.Run(float64(cfg.ticks+1) * params.Period)
	if err := runner.Err(); err != nil {
		return err
	}

	injected, blocked := 0, 0
	for _, src := range sources {
		injected += src.Injected
		blocked += src.Blocked
	}
	log.Info(ctx, "simulation finished",
		logging.String("network", net.Name),
		logging.Int("ticks", runner.Done()),
		logging.Int("live_packets", net.LivePackets()),
		logging.Int("created_packets", net.TotalCreated()),
		logging.Int("injected", injected),
		logging.Int("blocked", blocked),
		logging.String("elapsed", time.Since(started).String()))

	var errs []error
	if cfg.traceFile != "" {
		errs = append(errs, tm.WriteToFile(cfg.traceFile, true))
	}
	if cfg.metricsFile != "" {
		errs = append(errs, collector.WriteTextfile(cfg.metricsFile))
	}
	if cfg.describe != "" {
		final := net.Describe()
		final.Sources = nd.Sources
		errs = append(errs, final.WriteToFile(cfg.describe))
	}
	return lanesim.ReportErrs(errs)
}

// loadParams reads the parameter file, if any, and applies overrides
func loadParams(cfg runConfig) (lanesim.SimParams, error) {
	params := lanesim.DefaultSimParams()
	if cfg.paramFile != "" {
		ext := filepath.Ext(cfg.paramFile)
		useYAML := ext == ".yaml" || ext == ".yml"
		read, err := lanesim.ReadSimParams(cfg.paramFile, useYAML, nil)
		if err != nil {
			return params, err
		}
		params = *read
	}
	if err := params.ApplySettings(cfg.sets); err != nil {
		return params, err
	}
	if cfg.period > 0 {
		params.Period = cfg.period
	}
	if cfg.workers > 0 {
		params.Workers = cfg.workers
	}
	if cfg.traceFile != "" {
		params.Trace = true
	}
	return params, params.Validate()
}

// buildNetwork loads the network named by -net or generates a random one
func buildNetwork(cfg runConfig, params lanesim.SimParams, log logging.Logger) (*lanesim.Network, *lanesim.NetworkDesc, error) {
	if cfg.netFile != "" {
		return lanesim.LoadNetwork(cfg.netFile, params, log)
	}
	rng := rngstream.New("generator")
	nd, err := lanesim.GenerateNetwork(fmt.Sprintf("random-%d", cfg.random), cfg.random, rng)
	if err != nil {
		return nil, nil, err
	}
	net, err := lanesim.BuildNetwork(nd, params, log)
	if err != nil {
		return nil, nil, err
	}
	return net, nd, nil
}
