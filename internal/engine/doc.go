// Package engine implements the computation engine a realization wraps.
//
// The engine holds the facts of every relation in a SQLite store, applies
// incoming transactions, propagates them through the program's rules and
// publishes the resulting changes to output streams restricted to relation
// id subsets.
//
// ARCHITECTURE:
//
// Single-Writer Application:
// Transactions reach the engine through the transaction multiplexer, which
// guarantees that at most one OnTxn call is in flight. The engine also holds
// its own mutex, so direct callers (tests, tools) get the same guarantee.
//
// Transaction Processing Flow:
//  1. Updates are relabeled through the redirect map (source id -> local id)
//  2. Values are normalized to NFC
//  3. The store applies the batch and all rule consequences in one SQL transaction
//  4. The callback observes every net change
//  5. Every stream receives the changes on its relations, stamped with one seq
//
// Stream delivery fans out over a bounded worker pool (the worker count
// given to Start). Each stream still receives transactions in commit order.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every published transaction is stamped with a monotonic seq from Clock.Commit.
//
// Acyclic Rules:
// NewProgram rejects rule cycles, so propagation always reaches a fixpoint.
package engine
