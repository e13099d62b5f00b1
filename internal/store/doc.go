// Package store provides the SQLite-backed relation state of the
// computation engine.
//
// Every fact is a (relation id, value) pair with a positive weight counting
// how many times it has been asserted, either directly by an input
// transaction or through a program rule. A fact is present while its weight
// is positive.
//
// # Critical Patterns
//
// Set Semantics:
//   - Apply reports a change only when a fact appears or disappears
//   - Deleting an absent fact is a no-op, weights never go negative
//
// Atomicity:
//   - Every Apply call runs inside one SQL transaction
//
// Deterministic Results:
//   - Contents is ORDER BY value COLLATE BINARY
//   - Changes are reported in the order facts were first touched
//
// # Database Configuration
//
//   - WAL mode for file databases (":memory:" keeps its memory journal)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - A single connection, so ":memory:" databases are not split per conn
package store
