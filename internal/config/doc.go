// Package config loads a system topology from a file.
//
// A topology names every logical node, the address it is assigned to and
// how each of its relations is fed: from another node's relation (input),
// from a file (source), or into a file (sink). It also carries the rules of
// the program every node runs.
//
// Three formats are accepted, chosen by file extension:
//
//	.yaml, .yml   YAML
//	.cue, .json   CUE (JSON is valid CUE)
//	.hcl          HCL
//
// YAML, CUE and JSON share one document shape:
//
//	nodes:
//	  "6f1c...":
//	    address: 10.0.0.1:7000
//	    relations:
//	      "0": [{input: 4}, {sink: out.dump}]
//	rules:
//	  - {head: 2, body: 1}
//
// HCL uses blocks:
//
//	node "6f1c..." {
//	  address = "10.0.0.1:7000"
//	  relation "0" {
//	    inputs = [4]
//	    sinks  = ["out.dump"]
//	  }
//	}
//	rule {
//	  head = 2
//	  body = 1
//	}
//
// A node without an address is part of the system but assigned nowhere.
package config
