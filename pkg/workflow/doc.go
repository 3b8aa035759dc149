// Package workflow joins validation, backend mutations and broadcasts.
//
// Every mutation is two separately failable steps: the backend write, whose
// failure is returned to the caller, and the notification (assemble, project,
// schedule), whose failure is only logged. A crash between the two loses the
// notification but not the write; the next read assembles the correct state.
package workflow
