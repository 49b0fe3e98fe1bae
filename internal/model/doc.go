// Package model defines shared data types used across the sales bot.
//
// Conventions:
//   - Prices: float64 in the active currency's major unit; zero or missing
//     means "category, not orderable"
//   - Timestamps: time.Time (stored in UTC)
//   - IDs: opaque strings (conversation addresses, uuid strings for orders)
package model
