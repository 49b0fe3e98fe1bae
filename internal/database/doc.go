// Package database provides connection pool management for PostgreSQL.
//
// One pool serves the catalog, order, and currency stores.
package database
