// Package registry holds in-memory conversation state.
//
// The registry is an owned, injectable object, never process-global. Records
// are not persisted: after a restart the registry is empty and conversations
// are rebuilt through the order-recovery rule in the flow engine.
package registry
