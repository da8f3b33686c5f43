// SPDX-License-Identifier: MPL-2.0

// Package testutil builds kjar, jar and class-file fixtures for tests and
// carries small helpers for cleanup and time control.
//
//	testutil.NewKjar("org.acme", "orders", "1.0").
//		Process("org/acme/order.bpmn", "org.acme.order").
//		Install(t, repoRoot)
package testutil
