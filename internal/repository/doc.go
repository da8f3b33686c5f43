// SPDX-License-Identifier: MPL-2.0

// Package repository implements the filesystem artifact repository that
// resolves module releases into kmodule containers.
//
// Resolution walks module dependencies depth first with cycle detection and
// caches every loaded module in memory until RemoveArtifact evicts it. The
// LATEST version resolves to the highest installed semantic version.
package repository
