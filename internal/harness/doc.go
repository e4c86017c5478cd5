// Package harness runs conformance scenarios against the partition state
// machine.
//
// A scenario is a YAML file listing commands to apply to a single partition
// and assertions on the resulting trace and stored state. Every scenario
// runs in a fresh in-memory SQLite store with fixed invocation ids, so the
// trace it produces is identical across runs and can be compared against a
// golden file.
//
// # Scenario Format
//
//	name: sleep_then_output
//	description: "A sleeping invocation resumes when its timer fires"
//	steps:
//	  - invoke: { id: 1, service: cart, key: user-42, method: checkout, ingress: web-1 }
//	  - append: { id: 1, entry: sleep, wake_up_time: 1000 }
//	  - fire_timer: { id: 1, index: 0, timestamp: 1000 }
//	  - append: { id: 1, entry: output_stream, value: done }
//	assertions:
//	  - type: status
//	    id: 1
//	    expect: free
//	  - type: effect_order
//	    effects: [invoke_service, timer_registered, resume_service, outbox_enqueued]
//
// Invocations are referred to by the small integer given in their invoke
// step; the harness maps it to a fixed invocation id with
// testutil.InvocationID.
//
// # Assertion Types
//
//   - status: the status kind of an invocation's service instance, and
//     optionally the entries it waits for
//   - journal_length: the journal length of the active invocation
//   - effect_order: effect kinds appear in this order (gaps allowed)
//   - effect_count: an effect kind appears exactly count times
//   - outbox: the number of undelivered outbox messages
//   - inbox: the number of invocations queued for a service instance
//   - timers: the number of registered timers
//   - state: the user state value stored under a key, or its absence
//
// # Golden Traces
//
// RunWithGolden compares the trace of a scenario against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
