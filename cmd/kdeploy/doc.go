// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for kdeploy.
//
// This package implements the Cobra command hierarchy for the kdeploy CLI:
// installing kjars into the local repository, one-shot deployments, printing
// the effective deployment descriptor, configuration management and the
// long-running serve command with its SSH admin console and repository
// watcher.
package cmd
