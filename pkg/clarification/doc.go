// Package clarification holds the clarification registry: which question codes belong
// to which committee, the legal per-question statuses and the legal committee-level
// approval statuses.
//
// Everything here is pure validation. Batches are checked pre-flight and either every
// item is accepted or the whole batch is rejected, so no partial write can follow a
// failed validation.
package clarification
