// Package ir provides the record-level types exchanged between the
// computation engine, the transaction multiplexer and every channel or file
// adapter.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Relation ids are program-wide; the same id may appear on several nodes
//   - Values are compared in Unicode NFC form (see NewValue)
//   - A Txn is applied atomically; its Seq is a logical clock, never wall-clock
package ir
