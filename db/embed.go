// Package db embeds the database schema applied on startup.
package db

import _ "embed"

// Schema holds the DDL for all checkout-engine tables. Statements are
// idempotent (IF NOT EXISTS) so re-running on boot is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
