// Package governance coordinates the runtime safety controls the hub applies to its
// outbound backend calls and its operator API: circuit breaking, bounded retries with
// backoff, and per-route rate limiting.
//
// None of these controls change the outcome a caller observes beyond failing fast:
// an open circuit or an exhausted retry budget surfaces as an ordinary error that the
// source adapters turn into a per-slot SourceError.
package governance
