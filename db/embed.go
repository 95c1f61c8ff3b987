// Package db embeds the order store schema.
package db

import _ "embed"

// Schema creates the orders, products and order_lines tables. Every
// statement is idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
