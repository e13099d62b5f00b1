// Package schema defines the declarative configuration of a distributed
// computation: which relations each logical node consumes, reads from files
// and writes to files (SysCfg), and which physical address hosts each
// logical node (Assignment).
//
// Output relations are never configured directly. They are inferred from the
// Input directives of other nodes by the realize package.
package schema
