// Package harness runs scripted scenarios against the engine.
//
// A scenario drives a fresh engine through a list of operations and clock
// moves, checks each operation's outcome, then asserts on the final state.
// Every run journals into an in-memory store and replays that journal, so
// a passing scenario also proves its history is reproducible.
//
// # Scenario Format
//
//	name: late_task
//	description: "A missed deadline locks the stake"
//	registrar: registrar        # optional
//	start_at: 1704067200        # optional, unix seconds
//	steps:
//	  - op: register_kind
//	    caller: registrar
//	    kind: TimelockingDeadlineTask
//	  - op: create
//	    caller: alice
//	    kind: TimelockingDeadlineTask
//	    value: 50
//	    payload: {deadline: "now+1h", submission_window: 600, timelock_duration: 3600}
//	    expect: {id: 0}
//	  - advance: 3601
//	  - op: withdraw
//	    caller: alice
//	    commitment_id: 0
//	    expect: {error: FUNDS_LOCKED}
//	assertions:
//	  - type: missed
//	    commitment_id: 0
//	    expect: 1
//	  - type: balance
//	    account: commitment/0
//	    expect: 50
//
// A step is an op, an advance (seconds) or a set (unix time). Payload
// strings "now", "now+N" and "now-N" resolve against the scenario clock;
// N may carry an s, m, h or d suffix.
//
// # Assertion Types
//
//   - status: the commitment's status
//   - missed: missed deadlines of a participant (owner by default)
//   - event_count: committed events, optionally filtered by event and commitment_id
//   - balance: an escrow account's balance, or the total paid to an identity
//   - next_id: the id the next create will get
//
// # Golden Traces
//
// RunWithGolden compares the committed events against
// testdata/golden/<name>.golden, rendered as canonical JSON.
package harness
