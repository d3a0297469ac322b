// Package harness runs reconciliation scenarios as executable contract
// tests.
//
// # Scenario Format
//
// Scenarios are YAML files that describe the world before a pass and what
// the passes must produce:
//
//	name: group_fragment_wins
//	description: "The assignment fragment overrides the default"
//	directory:
//	  groups:
//	    - { sid: S-1-5-21-1-2001, name: Mobile Users }
//	  users:
//	    - { sid: S-1-5-21-1-1001, name: Alice, groups: [Mobile Users] }
//	users: [Mobile Users]
//	assignments:
//	  - { name: sales, appliedTo: [Sales] }
//	fragments:
//	  default: { locationMode: LOCATION_ENFORCED }
//	policies:
//	  S-1-5-21-1-1001: {}
//	failures:
//	  - { op: patch, name: S-1-5-21-1-1001, error: quota exceeded }
//	passes: 2
//	assertions:
//	  - type: outcome
//	    name: S-1-5-21-1-1001
//	    outcome: Updated
//	  - type: final_policy
//	    name: S-1-5-21-1-1001
//	    expect: { locationMode: LOCATION_DISABLED }
//
// # Assertion Types
//
//   - outcome: the record's outcome (and optionally label) in a pass
//   - final_policy: the stored document after the last pass, or its absence
//   - writes: the number of patch and delete calls in a pass
//   - run_counts: outcome counts of the last run in the run log
//
// Pass numbers start at 1; an assertion without one checks the last pass.
//
// # Deterministic Testing
//
// Every scenario runs against in-memory fakes of the policy store, the
// fragment source and the directory, with an in-memory SQLite run log,
// fixed run ids and a stepping clock. Trace and final policies are
// rendered as canonical JSON so they can be compared with golden files:
//
//	go test ./internal/harness -update
package harness
