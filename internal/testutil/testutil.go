// Package testutil provides test utilities for FeatureHub:
//   - Miniredis helpers for every Redis-protocol surface (miniredis.go)
//   - An in-memory metadata store for unit tests (memstore.go)
//   - Feature metadata fixtures (fixtures.go)
//
// Nothing here requires Docker; the in-memory store stands in for Postgres in
// unit tests while honoring the Store contract, including the CAS claim.
package testutil
