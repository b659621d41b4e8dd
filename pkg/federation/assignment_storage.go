package federation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// AssignmentAPI looks up the projects and domains reachable by a user or a
// set of groups. Implementations return NotFoundError when the user id does
// not name a stored user; the aggregator relies on that distinction.
type AssignmentAPI interface {
	ProjectsForUser(ctx context.Context, userID string) ([]Resource, error)
	ProjectsForGroups(ctx context.Context, groupIDs []string) ([]Resource, error)
	DomainsForUser(ctx context.Context, userID string) ([]Resource, error)
	DomainsForGroups(ctx context.Context, groupIDs []string) ([]Resource, error)
}

// AssignmentStorage implements AssignmentAPI over the assignment tables.
type AssignmentStorage struct {
	db *sql.DB
}

// NewAssignmentStorage creates assignment storage over db.
func NewAssignmentStorage(db *sql.DB) *AssignmentStorage {
	return &AssignmentStorage{db: db}
}

func (s *AssignmentStorage) userExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM federation_users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// ProjectsForUser returns the projects directly assigned to a user.
func (s *AssignmentStorage) ProjectsForUser(ctx context.Context, userID string) ([]Resource, error) {
	return s.forUser(ctx, userID, "project", "federation_projects")
}

// DomainsForUser returns the domains directly assigned to a user.
func (s *AssignmentStorage) DomainsForUser(ctx context.Context, userID string) ([]Resource, error) {
	return s.forUser(ctx, userID, "domain", "federation_domains")
}

func (s *AssignmentStorage) forUser(ctx context.Context, userID, targetType, table string) ([]Resource, error) {
	exists, err := s.userExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Resource: "user", ID: userID}
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.name, %s, t.enabled
		FROM %s t
		JOIN federation_assignments a ON a.target_id = t.id
		WHERE a.actor_type = 'user' AND a.actor_id = $1 AND a.target_type = '%s'
		ORDER BY t.id`, domainColumn(targetType), table, targetType)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss for user: %w", targetType, err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ProjectsForGroups returns the projects reachable through any of the groups.
func (s *AssignmentStorage) ProjectsForGroups(ctx context.Context, groupIDs []string) ([]Resource, error) {
	return s.forGroups(ctx, groupIDs, "project", "federation_projects")
}

// DomainsForGroups returns the domains reachable through any of the groups.
func (s *AssignmentStorage) DomainsForGroups(ctx context.Context, groupIDs []string) ([]Resource, error) {
	return s.forGroups(ctx, groupIDs, "domain", "federation_domains")
}

func (s *AssignmentStorage) forGroups(ctx context.Context, groupIDs []string, targetType, table string) ([]Resource, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(groupIDs))
	args := make([]interface{}, len(groupIDs))
	for i, id := range groupIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT t.id, t.name, %s, t.enabled
		FROM %s t
		JOIN federation_assignments a ON a.target_id = t.id
		WHERE a.actor_type = 'group' AND a.actor_id IN (%s) AND a.target_type = '%s'
		ORDER BY t.id`, domainColumn(targetType), table, strings.Join(placeholders, ", "), targetType)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss for groups: %w", targetType, err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// domainColumn selects the domain_id column for projects; domains have none.
func domainColumn(targetType string) string {
	if targetType == "project" {
		return "t.domain_id"
	}
	return "''"
}

func scanResources(rows *sql.Rows) ([]Resource, error) {
	var resources []Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.Name, &r.DomainID, &r.Enabled); err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}
