// SPDX-License-Identifier: MPL-2.0

// Package adminserver provides an SSH admin console, built on the Wish
// library, for a running deployment service.
//
// Operators authenticate with short-lived tokens issued by the serving
// process and run one command per session, for example
// `ssh -p 2222 kdeploy@localhost list`.
package adminserver
