// Package db ships the SQL migrations with the binaries.
package db

import "embed"

// Migrations contains every migrations/*.sql file.
//
//go:embed migrations/*.sql
var Migrations embed.FS
