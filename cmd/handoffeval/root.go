package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahrav/go-handoff/internal/application"
	"github.com/ahrav/go-handoff/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// rootOptions holds the global flags and the runtime built from them.
type rootOptions struct {
	configPath    string
	output        string
	logLevel      string
	metricsListen string

	cfg     *application.Config
	runtime *application.Runtime
	metrics *http.Server
}

// execute runs the command line in args. The runtime is torn down whether
// or not the command succeeds.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, opts.teardown(ctx))
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoffeval",
		Short: "Measure how much information survives agent handoffs",
		Long: `handoffeval scores the context passed between agents in a pipeline.

Each handoff is scored for fidelity, drift and compression and stored.
Finalizing a pipeline rolls its handoffs up into one summary.

Commands:
  evaluate   Score and store one handoff
  replay     Score a YAML file of handoffs and finalize their pipelines
  finalize   Recompute a pipeline summary
  status     Show whether a pipeline summary is current
  formats    Compare context formats across all handoffs
  judge      Ask the LLM judge to assess one handoff

Configuration is read from --config, then HANDOFF_* environment variables.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVarP(&opts.output, "output", "o", outputJSON, "Output format (json, yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override log.level")
	flags.StringVar(&opts.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")

	cmd.AddCommand(
		newEvaluateCmd(opts),
		newReplayCmd(opts),
		newFinalizeCmd(opts),
		newStatusCmd(opts),
		newFormatsCmd(opts),
		newJudgeCmd(opts),
	)
	return cmd
}

func (o *rootOptions) setup(ctx context.Context) error {
	if err := validateOutput(o.output); err != nil {
		return err
	}

	cfg, err := application.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = o.metricsListen
	}
	o.cfg = cfg

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	rt, err := application.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	o.runtime = rt

	if cfg.Metrics.Enabled {
		o.serveMetrics(cfg.Metrics.Listen)
	}
	return nil
}

func (o *rootOptions) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", o.runtime.Metrics.Handler())
	o.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := o.runtime.Logger
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := o.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (o *rootOptions) teardown(ctx context.Context) error {
	var errs []error
	if o.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, o.metrics.Shutdown(shutdownCtx))
		o.metrics = nil
	}
	if o.runtime != nil {
		errs = append(errs, o.runtime.Close())
		_ = o.runtime.Logger.Sync()
		o.runtime = nil
	}
	return errors.Join(errs...)
}

// service returns the composed service. It is only valid inside RunE.
func (o *rootOptions) service() (*application.EvaluatorService, error) {
	if o.runtime == nil {
		return nil, fmt.Errorf("runtime not initialized")
	}
	return o.runtime.Service, nil
}
