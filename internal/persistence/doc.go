// SPDX-License-Identifier: MPL-2.0

// Package persistence provides persistence units backed by SQLite.
//
// A Factory is the open database of one named persistence unit. The Registry
// creates factories on first use and shares them across deployments; every
// database is migrated with the embedded goose migrations on open. The
// DeploymentStore and AuditLog tables live in the same schema.
package persistence
