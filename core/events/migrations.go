package events

import "embed"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the embedded schema migrations and their path,
// ready to hand to a migration runner.
func Migrations() (embed.FS, string) {
	return migrationsFS, "migrations"
}
