package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/primaza/primazactl/internal/access"
	"github.com/primaza/primazactl/internal/k8s"
)

// Global flag names, also the viper keys. PRIMAZACTL_<NAME> with dashes
// replaced by underscores sets each of them from the environment.
const (
	flagKubeconfig  = "kubeconfig"
	flagDryRun      = "dry-run"
	flagOutput      = "output"
	flagLogLevel    = "log-level"
	flagLogFormat   = "log-format"
	flagVerbose     = "verbose"
	flagMetricsFile = "metrics-file"
	flagPreflight   = "preflight"
)

const envPrefix = "PRIMAZACTL"

// rootConfig holds the global flags of rootCmd.
var rootConfig = viper.New()

// rootCmd represents the base command for the primazactl application.
// It is assigned in init because its subcommands refer back to it.
var rootCmd *cobra.Command

func init() {
	rootCmd = newRootCmd(rootConfig)
}

// newRootCmd builds the command tree with its global flags bound to v.
func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "primazactl",
		Short: "Bootstrap a primaza federation across clusters",
		Long: `primazactl installs a primaza tenant on a control plane cluster, joins
worker clusters to it and prepares agent namespaces on those workers.

Every command is a single run that either completes or stops at the first
failing step. Objects created before the failure are kept, so running the
same command again resumes it.`,
		// Errors are printed by Execute, once, in the format chosen by --verbose.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringP(flagKubeconfig, "k", "", "path to the kubeconfig file (default: KUBECONFIG, else ~/.kube/config)")
	flags.String(flagDryRun, "none", "dry run mode: none, client or server")
	flags.StringP(flagOutput, "o", "none", "print the resources created: none or yaml")
	flags.String(flagLogLevel, "warn", "log level: debug, info, warn or error")
	flags.String(flagLogFormat, "text", "log format: text or json")
	flags.BoolP(flagVerbose, "x", false, "print errors with their stack and details")
	flags.String(flagMetricsFile, "", "write metrics to this file in Prometheus textfile format on exit")
	flags.Bool(flagPreflight, true, "check that every cluster is reachable before using it")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	cmd.AddCommand(newCreateCmd(v))
	cmd.AddCommand(newDeleteCmd(v))
	cmd.AddCommand(newJoinCmd(v))
	cmd.AddCommand(newApplyCmd(v))
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSelfUpdateCmd())
	return cmd
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "primazactl version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err, rootConfig.GetBool(flagVerbose))
		os.Exit(1)
	}
}

// printError writes err on one line, or with its stack and details when
// verbose is set. Permission violations are followed by a table.
func printError(w io.Writer, err error, verbose bool) {
	if verbose {
		_, _ = fmt.Fprintf(w, "Error: %+v\n", err)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	}

	var perr *k8s.PermissionError
	if errors.As(err, &perr) && len(perr.Violations) > 0 {
		_, _ = fmt.Fprintln(w)
		access.WriteReport(w, perr.Violations)
	}
}
