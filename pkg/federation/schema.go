package federation

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the federation tables if they do not exist. The
// unique indexes are what make concurrent create/update races safe: a
// read-then-write cannot admit two rows claiming the same id or remote id.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS federation_idps (
			id VARCHAR(64) PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			description TEXT NOT NULL DEFAULT '',
			domain_id VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS federation_idp_remote_ids (
			remote_id VARCHAR(255) PRIMARY KEY,
			idp_id VARCHAR(64) NOT NULL REFERENCES federation_idps(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_remote_ids_idp ON federation_idp_remote_ids(idp_id)`,
		`CREATE TABLE IF NOT EXISTS federation_protocols (
			idp_id VARCHAR(64) NOT NULL REFERENCES federation_idps(id),
			id VARCHAR(64) NOT NULL,
			mapping_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (idp_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS federation_mappings (
			id VARCHAR(64) PRIMARY KEY,
			rules TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS federation_sps (
			id VARCHAR(64) PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			description TEXT NOT NULL DEFAULT '',
			auth_url TEXT NOT NULL,
			sp_url TEXT NOT NULL,
			relay_state_prefix VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS federation_users (
			id VARCHAR(64) PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS federation_projects (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			domain_id VARCHAR(64) NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS federation_domains (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS federation_assignments (
			actor_type VARCHAR(8) NOT NULL,
			actor_id VARCHAR(64) NOT NULL,
			target_type VARCHAR(8) NOT NULL,
			target_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (actor_type, actor_id, target_type, target_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create federation schema: %w", err)
		}
	}
	return nil
}
