// SPDX-License-Identifier: MPL-2.0

// Package bpmn reads BPMN2 process definitions into deployable process assets.
//
// Only the definition header is interpreted: the process id, name, version and
// package. Validation checks the structural references a process engine would
// reject at start time.
package bpmn
