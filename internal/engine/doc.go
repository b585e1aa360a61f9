// Package engine is the single global serializer for the protocol.
//
// Every mutating operation goes through Engine.Execute, which holds one
// mutex for the whole operation:
//
//  1. assign seq from the logical Clock
//  2. fix the operation time: max(pinned or source time, last time)
//  3. run the domain method against a fresh effects buffer
//  4. on success, stamp events, apply stake movements to the vault and
//     append events to the history
//  5. journal the operation with its outcome, accepted or rejected
//
// A rejected operation changes nothing but the seq counter and the
// journal. A journal or ledger failure halts the engine: it refuses every
// later operation rather than drift from durable state.
//
// Replay re-executes a journal with pinned times and checks each outcome
// and event list against what was recorded. Same journal, same state.
package engine
