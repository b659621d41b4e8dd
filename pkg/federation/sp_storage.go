package federation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ServiceProviderStorage persists service provider records.
type ServiceProviderStorage struct {
	db *sql.DB
	// defaultRelayStatePrefix is applied when a record is created without
	// an explicit relay_state_prefix.
	defaultRelayStatePrefix string
}

// NewServiceProviderStorage creates service provider storage over db.
func NewServiceProviderStorage(db *sql.DB, defaultRelayStatePrefix string) *ServiceProviderStorage {
	return &ServiceProviderStorage{db: db, defaultRelayStatePrefix: defaultRelayStatePrefix}
}

// CreateServiceProvider inserts a service provider, defaulting the relay
// state prefix from configuration when omitted.
func (s *ServiceProviderStorage) CreateServiceProvider(ctx context.Context, sp *ServiceProvider) error {
	if sp.RelayStatePrefix == "" {
		sp.RelayStatePrefix = s.defaultRelayStatePrefix
	}

	now := time.Now().UTC()
	sp.CreatedAt = now
	sp.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO federation_sps (id, enabled, description, auth_url, sp_url, relay_state_prefix, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sp.ID, sp.Enabled, sp.Description, sp.AuthURL, sp.SPURL, sp.RelayStatePrefix,
		sp.CreatedAt, sp.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Resource: "service provider", ID: sp.ID}
		}
		return fmt.Errorf("failed to insert service provider: %w", err)
	}
	return nil
}

// GetServiceProvider returns one service provider.
func (s *ServiceProviderStorage) GetServiceProvider(ctx context.Context, id string) (*ServiceProvider, error) {
	sp := &ServiceProvider{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, enabled, description, auth_url, sp_url, relay_state_prefix, created_at, updated_at
		FROM federation_sps WHERE id = $1`, id).Scan(
		&sp.ID, &sp.Enabled, &sp.Description, &sp.AuthURL, &sp.SPURL,
		&sp.RelayStatePrefix, &sp.CreatedAt, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "service provider", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service provider: %w", err)
	}
	return sp, nil
}

// ListServiceProviders returns providers matching the filter, ordered by id.
func (s *ServiceProviderStorage) ListServiceProviders(ctx context.Context, filter ServiceProviderFilter) ([]*ServiceProvider, error) {
	query := `
		SELECT id, enabled, description, auth_url, sp_url, relay_state_prefix, created_at, updated_at
		FROM federation_sps`
	var clauses []string
	var args []interface{}
	if filter.ID != nil {
		args = append(args, *filter.ID)
		clauses = append(clauses, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		clauses = append(clauses, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list service providers: %w", err)
	}
	defer rows.Close()

	var sps []*ServiceProvider
	for rows.Next() {
		sp := &ServiceProvider{}
		if err := rows.Scan(&sp.ID, &sp.Enabled, &sp.Description, &sp.AuthURL, &sp.SPURL,
			&sp.RelayStatePrefix, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, err
		}
		sps = append(sps, sp)
	}
	return sps, rows.Err()
}

// UpdateServiceProvider applies a partial merge.
func (s *ServiceProviderStorage) UpdateServiceProvider(ctx context.Context, id string, update *ServiceProviderUpdate) (*ServiceProvider, error) {
	var set []string
	var args []interface{}
	if update.Enabled != nil {
		args = append(args, *update.Enabled)
		set = append(set, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if update.Description != nil {
		args = append(args, *update.Description)
		set = append(set, fmt.Sprintf("description = $%d", len(args)))
	}
	if update.AuthURL != nil {
		args = append(args, *update.AuthURL)
		set = append(set, fmt.Sprintf("auth_url = $%d", len(args)))
	}
	if update.SPURL != nil {
		args = append(args, *update.SPURL)
		set = append(set, fmt.Sprintf("sp_url = $%d", len(args)))
	}
	if update.RelayStatePrefix != nil {
		args = append(args, *update.RelayStatePrefix)
		set = append(set, fmt.Sprintf("relay_state_prefix = $%d", len(args)))
	}
	args = append(args, time.Now().UTC())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE federation_sps SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update service provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &NotFoundError{Resource: "service provider", ID: id}
	}
	return s.GetServiceProvider(ctx, id)
}

// DeleteServiceProvider removes a service provider.
func (s *ServiceProviderStorage) DeleteServiceProvider(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM federation_sps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Resource: "service provider", ID: id}
	}
	return nil
}
