package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/cockroachdb/errors"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the repository primazactl releases are published in.
const githubRepoSlug = "primaza/primazactl"

// devVersion is the version of binaries built without release metadata.
const devVersion = "dev"

// newSelfUpdateCmd creates the Cobra command replacing the running binary
// with the latest release.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update primazactl to the latest version",
		Long: `Check the GitHub releases of primazactl and replace the running binary
with the latest one built for this platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current := rootCmd.Version
			if current == "" || current == devVersion {
				return errors.New("cannot self-update a development version")
			}

			ctx := cmd.Context()
			latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
			if err != nil {
				return errors.Wrap(err, "error occurred while detecting version")
			}
			if !found {
				return errors.Newf("latest version for %s/%s could not be found in %s", goruntime.GOOS, goruntime.GOARCH, githubRepoSlug)
			}

			if latest.LessOrEqual(current) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Current version (%s) is the latest\n", current)
				return nil
			}

			exe, err := selfupdate.ExecutablePath()
			if err != nil {
				return errors.Wrap(err, "could not locate executable path")
			}
			if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
				return errors.Wrap(err, "error occurred while updating binary")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Successfully updated to version %s\n", latest.Version())
			return nil
		},
	}
}
