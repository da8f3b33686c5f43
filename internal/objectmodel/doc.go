// SPDX-License-Identifier: MPL-2.0

// Package objectmodel turns descriptor object models into runtime objects.
//
// A Registry maps resolver kinds ("reflection", "cue", "env") to Resolvers.
// Deployments resolve every environment entry, configuration entry,
// marshalling strategy, listener, handler and global of their merged
// descriptor through the registry, passing the context parameters
// ParamEntityManagerFactory and ParamClassLoader.
package objectmodel
