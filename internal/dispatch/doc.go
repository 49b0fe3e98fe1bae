// Package dispatch implements the guarded outbound message dispatcher.
//
// Send re-checks the session preconditions on every attempt and backs off
// linearly between attempts. Delivery is best-effort: exhaustion yields nil,
// never an error across the state-machine boundary.
package dispatch
