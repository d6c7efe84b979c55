// Package store persists business records with upsert-by-website semantics.
//
// Backend implementations (memory, sqlite, postgres) report every failure as
// an error. Store wraps a Backend at the persistence boundary: it logs those
// errors and hands callers nil, empty or zero results instead.
package store
