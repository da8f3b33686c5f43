// SPDX-License-Identifier: MPL-2.0

// Package descriptor models deployment descriptors and merges descriptor
// hierarchies.
//
// A descriptor configures how a deployed unit is wired at runtime: its
// persistence and audit settings, runtime strategy, environment and
// configuration entries, marshalling strategies, listeners, handlers,
// globals, required roles and additional classes. Modules may ship one at
// META-INF/kie-deployment-descriptor with a .cue, .yaml, .toml, .hcl or .json
// extension; CUE files are validated against the embedded #Descriptor schema.
//
// Manager.Hierarchy collects the descriptors that apply to a module container
// and Merge folds them into the effective descriptor under a MergeMode.
package descriptor
