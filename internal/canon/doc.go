// Package canon produces the canonical JSON form (RFC 8785 key order, NFC
// strings, integers only) used wherever bytes must be identical across
// runs: stored operation arguments, instance handles, and the history
// digest replay is checked against.
//
// Floats and null are rejected. Every amount and timestamp in the protocol
// is an integer, so neither is ever needed.
package canon
