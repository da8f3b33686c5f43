// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalogue of Markdown
// guidance, rendered with glamour, for deployment failures shown by the CLI.
package issue
