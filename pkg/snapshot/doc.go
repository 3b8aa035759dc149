// Package snapshot assembles point-in-time views of a governance case.
//
// An Aggregator calls every backend source concurrently and records each outcome
// in its own slot; a failing source degrades only that slot. Project reduces an
// assembled Snapshot to the fields a subscriber renders.
package snapshot
