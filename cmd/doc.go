// Package cmd provides the command-line interface for primazactl.
//
// Command Structure:
//
//	primazactl create tenant [name]                    # Installs the control plane of a tenant
//	primazactl delete tenant [name]                    # Removes it
//	primazactl join cluster -d env -e dev              # Joins a worker cluster to a tenant
//	primazactl create application-namespace name -d env
//	primazactl create service-namespace name -d env
//	primazactl apply -f tenant.yaml                    # Runs all of the above from an options file
//	primazactl version                                 # Shows version information
//	primazactl self-update                             # Updates to latest release
//
// Global flags select the kubeconfig, the dry run mode (none, client or
// server) and the output mode (none or yaml). Every global flag can also be
// set through a PRIMAZACTL_ environment variable, for example
// PRIMAZACTL_DRY_RUN=client.
//
// Commands print one progress line when they start and one when they
// complete. A failure is printed as a single "Error:" line, or with its
// stack and details when --verbose is set.
package cmd
