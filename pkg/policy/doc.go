// Package policy evaluates the optional committee approval policy.
//
// The policy is a Rego module whose decision lives at data.governance.approval.
// Without a loaded module every status change is allowed; the governance core
// never gates approvals on its own.
package policy
