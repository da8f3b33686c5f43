// SPDX-License-Identifier: MPL-2.0

// Package runtime assembles the runtime environment of a deployed unit and
// manages the engines created from it.
//
// A Builder produces an Environment: the knowledge base, class loader,
// entity manager factory, named environment entries, string configuration
// entries, the ordered marshalling strategies and the RegisterableItemsFactory
// used to equip each engine. NewDefaultBuilder yields a persistence-backed
// environment, NewDefaultInMemoryBuilder an in-memory one.
//
// A Manager hands out Engines according to a runtime strategy: one shared
// engine (SINGLETON), a fresh engine per request (PER_REQUEST), or one engine
// per process instance (PER_PROCESS_INSTANCE). Engines dispatch process events
// to their listeners, which include the identity-aware listener and the audit
// listener.
package runtime
