// Package domain defines the core governance types shared by the hub.
//
// This package contains pure domain types with ZERO external dependencies outside the
// Go standard library: committees, clarification items, committee approval statuses,
// snapshots of a governance case and the error taxonomy used across the hub.
//
// Other packages (clarification, backend, snapshot, broadcast, workflow) depend on these
// types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
