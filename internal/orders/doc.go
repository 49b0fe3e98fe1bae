// Package orders persists customer orders and their reply threads.
//
// Orders snapshot the service name and price at creation time so later
// catalog edits never rewrite order history. The Store interface keeps
// the flow engine off the concrete Postgres implementation.
package orders
