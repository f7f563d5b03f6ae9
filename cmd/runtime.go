package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/primaza/primazactl/internal/federation"
	"github.com/primaza/primazactl/internal/instrumentation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
	"github.com/primaza/primazactl/internal/manifest"
	"github.com/primaza/primazactl/internal/runctx"
)

// loadCluster builds cluster handles. Tests replace it with fake clusters.
var loadCluster federation.ClusterLoader = k8s.LoadCluster

// shutdownTimeout bounds the flush of telemetry at exit.
const shutdownTimeout = 5 * time.Second

// runtime is what one command invocation works with, built from the
// global flags after they were validated.
type runtime struct {
	cmd          *cobra.Command
	logger       *slog.Logger
	run          *runctx.RunContext
	provider     *instrumentation.Provider
	orchestrator *federation.Orchestrator
	clusters     *federation.ClusterSet
	kubeconfig   string
	metricsFile  string
}

// globalFlags are the validated global flags.
type globalFlags struct {
	kubeconfig  string
	dryRun      runctx.DryRunMode
	output      runctx.OutputMode
	logLevel    string
	logFormat   string
	metricsFile string
	preflight   bool
}

func readGlobalFlags(v *viper.Viper) (globalFlags, error) {
	dryRun, err := runctx.ParseDryRun(v.GetString(flagDryRun))
	if err != nil {
		return globalFlags{}, err
	}
	output, err := runctx.ParseOutput(v.GetString(flagOutput))
	if err != nil {
		return globalFlags{}, err
	}
	if _, err := logging.ParseLevel(v.GetString(flagLogLevel)); err != nil {
		return globalFlags{}, err
	}
	return globalFlags{
		kubeconfig:  v.GetString(flagKubeconfig),
		dryRun:      dryRun,
		output:      output,
		logLevel:    v.GetString(flagLogLevel),
		logFormat:   v.GetString(flagLogFormat),
		metricsFile: v.GetString(flagMetricsFile),
		preflight:   v.GetBool(flagPreflight),
	}, nil
}

func newRuntime(cmd *cobra.Command, v *viper.Viper) (*runtime, error) {
	g, err := readGlobalFlags(v)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Level: g.logLevel, Format: g.logFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}

	cfg := instrumentation.DefaultConfig()
	cfg.ServiceVersion = rootCmd.Version
	if g.metricsFile != "" {
		cfg.Enabled = true
		cfg.MetricsExporter = instrumentation.ExporterPrometheus
	}
	provider, err := instrumentation.NewProvider(cmd.Context(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize instrumentation")
	}

	run := runctx.New(g.dryRun, g.output, logger)
	return &runtime{
		cmd:      cmd,
		logger:   logger,
		run:      run,
		provider: provider,
		orchestrator: federation.NewOrchestrator(run,
			federation.WithLogger(logger),
			federation.WithMetrics(provider.Metrics()),
			federation.WithResolver(manifest.NewResolver(manifest.WithLogger(logger)))),
		clusters: federation.NewClusterSet(
			federation.WithClusterLoader(loadCluster),
			federation.WithPreflight(g.preflight),
			federation.WithClusterSetLogger(logger)),
		kubeconfig:  g.kubeconfig,
		metricsFile: g.metricsFile,
	}, nil
}

// cluster returns the handle of context in kubeconfig, falling back to the
// global --kubeconfig.
func (r *runtime) cluster(ctx context.Context, kubeconfig, contextName, internalURL string) (*k8s.ClusterHandle, error) {
	if kubeconfig == "" {
		kubeconfig = r.kubeconfig
	}
	return r.clusters.Get(ctx, k8s.ClusterOptions{KubeconfigPath: kubeconfig, Context: contextName, ServerURL: internalURL})
}

// execute runs fn between the progress lines of task, then renders the
// recorded resources and flushes telemetry whatever the outcome.
func (r *runtime) execute(task string, fn func(ctx context.Context) error) (err error) {
	ctx := r.cmd.Context()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if r.metricsFile != "" {
			if werr := r.provider.WriteMetricsFile(r.metricsFile); werr != nil {
				r.logger.Warn("failed to write metrics file", logging.Err(werr))
			}
		}
		if serr := r.provider.Shutdown(shutdownCtx); serr != nil {
			r.logger.Debug("instrumentation shutdown failed", logging.Err(serr))
		}
	}()

	r.progress("%s in progress", task)
	if err := fn(ctx); err != nil {
		return err
	}
	if err := r.run.Render(r.cmd.OutOrStdout(), r.cmd.ErrOrStderr()); err != nil {
		return err
	}
	r.progress("%s completed", task)
	return nil
}

// progress prints a line for the user. With an output mode set stdout
// carries the resource list, so progress goes to stderr.
func (r *runtime) progress(format string, args ...any) {
	w := r.cmd.OutOrStdout()
	if r.run.OutputActive() {
		w = r.cmd.ErrOrStderr()
	}
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
