// Package session implements the connection lifecycle manager.
//
// The manager owns the one live gateway connection:
//   - Idempotent connect: concurrent calls collapse to one in-flight attempt
//   - Bounded wait for identity confirmation after the connection opens
//   - Synchronous persistence of credential updates
//   - Capped reconnection with exponential backoff and jitter
//   - Terminal failure (fail-fast) on logout or exhausted attempts
//
// Dependents never see a half-initialized session: the current-session
// handle is swapped atomically only after identity is confirmed.
package session
