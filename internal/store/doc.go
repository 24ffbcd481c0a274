// Package store provides content store implementations for the learning
// engines: an in-memory store for tests and single-process use, and a
// durable SQLite store.
//
// Both implementations satisfy the store interfaces declared by the engine
// packages (wisdom.AtomStore, versegraph.EdgeStore, flow.SessionStore,
// compose.TemplateStore). All mutating operations on an edge or template go
// through read-modify-write transactions scoped to one row, and atom
// creation treats the content-hash uniqueness constraint as the concurrency
// control.
package store
