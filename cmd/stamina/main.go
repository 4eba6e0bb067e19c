// Command stamina binds the engine's flags onto a cobra.Command, builds the
// requested fixture Generator and transient solver, drives internal/refine
// (or internal/threaded when --threads > 1) to completion, and maps the
// resulting error to an exit code via internal/errs. It generalizes the
// teacher's cmd/demo/main.go pattern -- build a model, run it, print what
// happened -- onto a real flag-driven entrypoint instead of a hardcoded
// Counter/CTL demo.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rfielding/stamina-go/internal/config"
	"github.com/rfielding/stamina-go/internal/errs"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/logging"
	"github.com/rfielding/stamina-go/internal/metrics"
	"github.com/rfielding/stamina-go/internal/models/mm1"
	"github.com/rfielding/stamina-go/internal/models/twostate"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/refine"
	"github.com/rfielding/stamina-go/internal/solver"
	"github.com/rfielding/stamina-go/internal/threaded"
)

// These flags sit outside config.Config's engine surface: the
// model-description parser is out of scope for the engine, so the CLI
// needs some way to pick a Generator to actually run, and some way to say
// whether/where to serve the metrics Collector as an HTTP endpoint.
var (
	modelName   string
	lambda, mu  float64
	logLevel    string
	logFormat   string
	configFile  string
	metricsAddr string
)

func main() {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "stamina",
		Short: "Truncated CTMC state-space exploration with property-probability bounds",
	}

	decode := config.AddTo(root.Flags(), &cfg)
	root.Flags().StringVar(&modelName, "model", "twostate", "fixture model to run: twostate or mm1")
	root.Flags().Float64Var(&lambda, "lambda", 1.0, "mm1 model arrival rate")
	root.Flags().Float64Var(&mu, "mu", 1.5, "mm1 model service rate")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&logFormat, "log-format", "console", "log format: console or json")
	root.Flags().StringVar(&configFile, "config", "", "optional config file overlay (viper-compatible)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := decode(configFile); err != nil {
			return err
		}
		return run(cmd.Context(), &cfg)
	}

	if err := root.Execute(); err != nil {
		log, logErr := logging.New(logLevel, logFormat, cfg.Quiet)
		if logErr != nil {
			log = logging.Nop()
		}
		log.Errorw("stamina run failed", "error", err)
		os.Exit(errs.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(logLevel, logFormat, cfg.Quiet)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	gen, err := buildGenerator()
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.New()
		go serveMetrics(log, collector, metricsAddr)
	}

	refineCfg := refine.Config{
		KappaInitial:         cfg.Kappa,
		KappaReductionFactor: cfg.ReduceKappa,
		Window:               cfg.ProbWin,
		MaxRefine:            cfg.MaxApproxCount,
		CTMC:                 true,
		NoPropRefine:         cfg.NoPropRefine,
		OvershootTolerance:   1e-9,
		Formula:              buildFormula(cfg.Property),
	}

	if cfg.Threads > 1 {
		return runThreaded(ctx, cfg, log)
	}

	var solve solver.Transient = solver.ReferenceUniformization{}
	solve = solver.WithRetry(solve, backoff.NewExponentialBackOff())
	ctrl, err := refine.New(gen, solve, log, refineCfg)
	if err != nil {
		return err
	}
	if collector != nil {
		ctrl.SetMetrics(collector)
	}

	result, err := ctrl.Run(ctx, refineCfg)
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		log.Infow("refinement finished",
			"passes", len(result.Passes),
			"converged", result.Converged,
			"p_min", result.PMin,
			"p_max", result.PMax,
		)
	}
	fmt.Printf("P_min=%v P_max=%v converged=%v passes=%d\n", result.PMin, result.PMax, result.Converged, len(result.Passes))
	return nil
}

// runThreaded drives the optional worker-pool exploration variant
// (internal/threaded) instead of the single-threaded refinement controller.
// It runs one kappa-truncated pass rather than refine's multi-pass loop
// (see internal/threaded's package doc for why), so it reports the built
// matrix's size rather than a converged probability window.
func runThreaded(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	factory := func(string) generator.Generator {
		gen, _ := buildGenerator()
		return gen
	}
	bitWidth := modelBitWidth()

	coord, err := threaded.New(factory, cfg.Threads, bitWidth)
	if err != nil {
		return err
	}

	m, err := coord.Run(ctx, threaded.Config{Kappa: cfg.Kappa, CTMC: true})
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		log.Infow("threaded exploration finished", "states", m.NumStates(), "workers", cfg.Threads)
	}
	fmt.Printf("states=%d workers=%d\n", m.NumStates(), cfg.Threads)
	return nil
}

func buildGenerator() (generator.Generator, error) {
	switch modelName {
	case "mm1":
		return mm1.New(lambda, mu), nil
	case "twostate", "":
		return twostate.New(demoChain()), nil
	default:
		return nil, errs.New(errs.InvalidInput, fmt.Sprintf("unknown model %q", modelName))
	}
}

func modelBitWidth() int {
	gen, err := buildGenerator()
	if err != nil {
		return 0
	}
	info := gen.VariableInfo()
	width := 0
	for _, group := range [][]generator.VarLayout{info.Bools, info.Ints, info.Locations} {
		for _, v := range group {
			if v.Offset+v.Width > width {
				width = v.Offset + v.Width
			}
		}
	}
	return width
}

// demoChain is the built-in twostate.Def the CLI runs when --model=twostate
// (the default), standing in for an external model description this
// engine has no parser for.
func demoChain() twostate.Def {
	return twostate.Def{
		Initial: "idle",
		Edges: map[string][]twostate.Edge{
			"idle":   {{To: "busy", Rate: 1}},
			"busy":   {{To: "idle", Rate: 2}, {To: "failed", Rate: 0.1}},
			"failed": {{To: "failed", Rate: 1}},
		},
		Labels: map[string][]string{
			"idle":   {"idle"},
			"failed": {"failed"},
		},
	}
}

// buildFormula turns --property into a trivial self-Until over the named
// atomic proposition, since the property-language parser (structured AST
// in, not text) is out of scope for this engine. An empty --property runs
// the explorer without a property to solve against.
func buildFormula(prop string) *property.Until {
	if prop == "" {
		return nil
	}
	u := property.Until{
		Left:  property.Atom("true"),
		Right: property.Atom(prop),
		Bound: property.UnboundedAbove(0),
	}
	return &u
}

func serveMetrics(log *zap.SugaredLogger, c *metrics.Collector, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	log.Infow("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec
		log.Errorw("metrics server stopped", "error", err)
	}
}
