// SPDX-License-Identifier: MPL-2.0

// Package classloader models the class space of a deployed module.
//
// Classes come from three places, searched in this order:
//
//   - the process-wide [Registry] of host types, which may carry a Go
//     constructor so object models can instantiate them
//   - the parent [JarLoader], backed by the external jar archives a module
//     declares as dependencies
//   - the module resources themselves ("com/acme/Order.class" entries)
//
// Class files are parsed just far enough to validate them and to read their
// name, super class and annotation types (see [ParseClassFile]).
package classloader
