// Package harness runs YAML selector scenarios with deterministic sequencing.
//
// # Scenario Format
//
//	name: out_of_order_join
//	description: "NamedSet before TargetCompleted still joins"
//	selector:
//	  file_name_allowlist: ["\\.kzip$"]
//	steps:
//	  - named_set:
//	      id: "1"
//	      files:
//	        - { name: a.kzip, uri: "file:///a.kzip" }
//	    expect: { none: true }
//	  - checkpoint: true
//	  - target:
//	      label: //a:a
//	      output_groups:
//	        - { name: kythe_compilation_unit, file_sets: ["1"] }
//	    expect:
//	      label: //a:a
//	      files:
//	        - { local_path: a.kzip, uri: "file:///a.kzip" }
//	assertions:
//	  - type: artifact_count
//	    count: 1
//
// Each step feeds one event to the selector, or with checkpoint: true
// serializes the selector through the store and continues with a fresh
// selector restored from the stored bytes.
//
// # Assertion Types
//
//   - artifact_count: exactly count artifacts were emitted
//   - artifact_order: emitted labels equal labels, in order
//   - artifact_files: the artifact for label carried exactly files
//   - final_stats: pending/resolved/consumed counts after the last step
//   - stored_count: the store holds count artifacts for the run
//
// # Deterministic Testing
//
// Every step takes one seq from testutil.DeterministicClock and the run id
// comes from testutil.FixedRunID, so traces are identical across runs and
// can be compared against golden files with RunWithGolden.
package harness
