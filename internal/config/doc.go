// SPDX-License-Identifier: MPL-2.0

// Package config loads kdeploy configuration using Viper with CUE as the file format.
//
// Configuration is read from ~/.config/kdeploy/config.cue (or the XDG equivalent on
// Linux, ~/Library/Application Support/kdeploy/config.cue on macOS, %APPDATA%\kdeploy\config.cue
// on Windows), falling back to ./config.cue. Files are validated against the embedded
// #Config schema (config_schema.cue). Environment variables prefixed with KDEPLOY_
// override file values, with dots replaced by underscores (KDEPLOY_ADMIN_PORT).
package config
