// Package backend talks to the external governance REST backend.
//
// Reads go through Source adapters, one per governance sub-resource. A Source never
// returns a Go error: an unreachable or failing endpoint is reported as a
// *domain.SourceError value so the snapshot aggregator can degrade a single slot.
// Writes (clarification and committee status updates) return *HTTPError on a
// non-2xx response.
package backend
