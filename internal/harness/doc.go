// Package harness runs vault scenarios written in YAML.
//
// A scenario fills a fresh vault through the ordinary record path (cash,
// deals, linear states, catalogue kinds), consumes and soft-locks entries,
// then runs queries. Every query is evaluated twice, by the in-memory
// executor and by the SQL backend over an in-memory SQLite store, and the
// two must agree. Outputs are named by step label ("cash:0" is output 0 of
// the step labelled "cash"), so results are readable and stable.
//
// Example:
//
//	name: tracked-deals
//	seed: tracked
//	steps:
//	  - action: fill_linear
//	    count: 2
//	  - action: track
//	    as: tracked
//	  - action: fill_deals
//	    as: deals
//	    refs: ["123", "456"]
//	queries:
//	  - name: tracked and deals
//	    criteria:
//	      and:
//	        - linking: {linear_ids: ["tracked:0"], external_ids: ["123", "456"]}
//	        - vault: {kinds: [Deal]}
//	    expect_count: 3
//
// Results can be compared against golden files with RunWithGolden.
package harness
