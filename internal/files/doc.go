// Package files adapts transaction files to the observer interfaces.
//
// A transaction file is a stream of YAML documents, one per transaction:
//
//	version: "1"
//	seq: 3
//	updates:
//	  - {op: insert, rel: 0, value: alice}
//	  - {op: delete, rel: 2, value: bob}
//
// The version key is optional when reading. A Sink writes this format and
// a Source reads it, so a sink's output can be replayed as a source.
package files
