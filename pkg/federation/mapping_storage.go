package federation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MappingStorage persists mapping rule documents. Every write runs the
// structure validator first; a failed validation aborts before any SQL is
// issued, so there is never partial persistence.
type MappingStorage struct {
	db *sql.DB
}

// NewMappingStorage creates mapping storage over db.
func NewMappingStorage(db *sql.DB) *MappingStorage {
	return &MappingStorage{db: db}
}

// CreateMapping validates and inserts a mapping document.
func (s *MappingStorage) CreateMapping(ctx context.Context, mapping *Mapping) error {
	if err := ValidateMappingRules(mapping.Rules); err != nil {
		return err
	}

	rulesJSON, err := json.Marshal(mapping.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping rules: %w", err)
	}

	now := time.Now().UTC()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO federation_mappings (id, rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		mapping.ID, rulesJSON, mapping.CreatedAt, mapping.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Resource: "mapping", ID: mapping.ID}
		}
		return fmt.Errorf("failed to insert mapping: %w", err)
	}
	return nil
}

// GetMapping returns one mapping document.
func (s *MappingStorage) GetMapping(ctx context.Context, id string) (*Mapping, error) {
	mapping := &Mapping{}
	var rulesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rules, created_at, updated_at
		FROM federation_mappings WHERE id = $1`, id).Scan(
		&mapping.ID, &rulesJSON, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "mapping", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	if err := json.Unmarshal(rulesJSON, &mapping.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping rules: %w", err)
	}
	return mapping, nil
}

// ListMappings returns all mappings ordered by id.
func (s *MappingStorage) ListMappings(ctx context.Context) ([]*Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rules, created_at, updated_at
		FROM federation_mappings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		mapping := &Mapping{}
		var rulesJSON []byte
		if err := rows.Scan(&mapping.ID, &rulesJSON,
			&mapping.CreatedAt, &mapping.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rulesJSON, &mapping.Rules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mapping rules: %w", err)
		}
		mappings = append(mappings, mapping)
	}
	return mappings, rows.Err()
}

// UpdateMapping validates and replaces the rules of an existing mapping.
func (s *MappingStorage) UpdateMapping(ctx context.Context, id string, rules []MappingRule) (*Mapping, error) {
	if err := ValidateMappingRules(rules); err != nil {
		return nil, err
	}

	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mapping rules: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE federation_mappings SET rules = $1, updated_at = $2 WHERE id = $3`,
		rulesJSON, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update mapping: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &NotFoundError{Resource: "mapping", ID: id}
	}
	return s.GetMapping(ctx, id)
}

// DeleteMapping removes a mapping unconditionally. Protocols still pointing
// at it are left dangling and fail at authentication time.
func (s *MappingStorage) DeleteMapping(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM federation_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Resource: "mapping", ID: id}
	}
	return nil
}
