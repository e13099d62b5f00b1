// Package realize turns a declarative topology into running pipelines.
//
// Given the configuration of every logical node and the address each one is
// assigned to, the package works out, for the nodes assigned to the local
// address, what has to be wired:
//
//   - outputs: which relations must be streamed to which remote addresses,
//     inferred from the Input directives of nodes placed elsewhere
//   - redirects: how updates arriving under a producer's relation id are
//     relabeled to the local relation consuming them
//   - sinks and sources: which relations are written to or read from each
//     file
//
// A Realizer then builds one pipeline per node: an engine with its
// redirects installed, TCP senders and file sinks subscribed to restricted
// engine streams, and a multiplexer feeding the engine from a TCP receiver
// and file sources. The result is a Realization whose only operation is
// Close.
//
// Instantiate is atomic: either every node assigned to the address is
// realized, or every partially built pipeline is torn down and an error is
// returned.
package realize
