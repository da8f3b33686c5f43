// SPDX-License-Identifier: MPL-2.0

// Package kmodule models deployable modules.
//
// A module is a versioned zip archive (.kjar) identified by a ReleaseID
// ("group:artifact:version"). Its META-INF/kmodule.cue declares knowledge
// bases, module dependencies and external jar dependencies; the schema is
// embedded in kmodule_schema.cue.
//
// A Container is the runtime view of a resolved module: the root Module, its
// transitive dependency modules, and a classloader.Loader over all of them.
package kmodule
