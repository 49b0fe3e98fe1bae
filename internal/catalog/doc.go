// Package catalog reads the service tree and answers the traversal
// questions the order flow asks of it: children of a node, lookup by id,
// whether anything orderable exists beneath a node, and the breadcrumb
// path from the root down to a node.
//
// The tree lives in Postgres but traversal logic is written against the
// Resolver interface so tests run on an in-memory fixture.
package catalog
