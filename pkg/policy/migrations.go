package policy

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the policy tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS policy_role_assignments (
			principal_id VARCHAR(64) NOT NULL,
			role VARCHAR(64) NOT NULL,
			PRIMARY KEY (principal_id, role)
		)`,
		`CREATE TABLE IF NOT EXISTS policy_grants (
			role VARCHAR(64) NOT NULL,
			action VARCHAR(128) NOT NULL,
			PRIMARY KEY (role, action)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create policy schema: %w", err)
		}
	}
	return nil
}
