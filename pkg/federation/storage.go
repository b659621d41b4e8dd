package federation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Storage persists identity providers and their protocols.
type Storage struct {
	db *sql.DB
}

// NewStorage creates identity provider storage over db.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// isUniqueViolation reports whether err is a unique-key insert failure from
// either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateIdentityProvider inserts an identity provider and its remote ids in
// one transaction. A duplicate id or a remote id already claimed by any
// provider yields ConflictError and no partial write.
func (s *Storage) CreateIdentityProvider(ctx context.Context, idp *IdentityProvider) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	idp.CreatedAt = now
	idp.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO federation_idps (id, enabled, description, domain_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		idp.ID, idp.Enabled, idp.Description, idp.DomainID, idp.CreatedAt, idp.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Resource: "identity provider", ID: idp.ID}
		}
		return fmt.Errorf("failed to insert identity provider: %w", err)
	}

	if err := insertRemoteIDs(ctx, tx, idp.ID, idp.RemoteIDs); err != nil {
		return err
	}

	return tx.Commit()
}

func insertRemoteIDs(ctx context.Context, tx *sql.Tx, idpID string, remoteIDs []string) error {
	for _, remoteID := range remoteIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO federation_idp_remote_ids (remote_id, idp_id) VALUES ($1, $2)`,
			remoteID, idpID)
		if err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{
					Resource: "identity provider",
					ID:       idpID,
					Detail:   fmt.Sprintf("remote id %q is already registered", remoteID),
				}
			}
			return fmt.Errorf("failed to insert remote id: %w", err)
		}
	}
	return nil
}

// GetIdentityProvider returns one identity provider with its remote ids.
func (s *Storage) GetIdentityProvider(ctx context.Context, id string) (*IdentityProvider, error) {
	idp := &IdentityProvider{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, enabled, description, domain_id, created_at, updated_at
		FROM federation_idps WHERE id = $1`, id).Scan(
		&idp.ID, &idp.Enabled, &idp.Description, &idp.DomainID, &idp.CreatedAt, &idp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "identity provider", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity provider: %w", err)
	}

	idp.RemoteIDs, err = s.remoteIDsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return idp, nil
}

func (s *Storage) remoteIDsFor(ctx context.Context, idpID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT remote_id FROM federation_idp_remote_ids WHERE idp_id = $1 ORDER BY remote_id`, idpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote ids: %w", err)
	}
	defer rows.Close()

	remoteIDs := []string{}
	for rows.Next() {
		var remoteID string
		if err := rows.Scan(&remoteID); err != nil {
			return nil, err
		}
		remoteIDs = append(remoteIDs, remoteID)
	}
	return remoteIDs, rows.Err()
}

// ListIdentityProviders returns providers matching the filter, ordered by id.
func (s *Storage) ListIdentityProviders(ctx context.Context, filter IdentityProviderFilter) ([]*IdentityProvider, error) {
	query := `SELECT id, enabled, description, domain_id, created_at, updated_at FROM federation_idps`
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
		return nil, fmt.Errorf("failed to list identity providers: %w", err)
	}
	defer rows.Close()

	var idps []*IdentityProvider
	for rows.Next() {
		idp := &IdentityProvider{}
		if err := rows.Scan(&idp.ID, &idp.Enabled, &idp.Description, &idp.DomainID,
			&idp.CreatedAt, &idp.UpdatedAt); err != nil {
			return nil, err
		}
		idps = append(idps, idp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, idp := range idps {
		if idp.RemoteIDs, err = s.remoteIDsFor(ctx, idp.ID); err != nil {
			return nil, err
		}
	}
	return idps, nil
}

// UpdateIdentityProvider applies a partial merge. When RemoteIDs is present
// the stored set is replaced wholesale and global uniqueness re-checked by
// the unique index, excluding the provider's own rows which are deleted
// first in the same transaction.
func (s *Storage) UpdateIdentityProvider(ctx context.Context, id string, update *IdentityProviderUpdate) (*IdentityProvider, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

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
	if update.DomainID != nil {
		args = append(args, *update.DomainID)
		set = append(set, fmt.Sprintf("domain_id = $%d", len(args)))
	}
	args = append(args, time.Now().UTC())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	result, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE federation_idps SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update identity provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &NotFoundError{Resource: "identity provider", ID: id}
	}

	if update.RemoteIDs != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM federation_idp_remote_ids WHERE idp_id = $1`, id); err != nil {
			return nil, fmt.Errorf("failed to clear remote ids: %w", err)
		}
		if err := insertRemoteIDs(ctx, tx, id, *update.RemoteIDs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetIdentityProvider(ctx, id)
}

// DeleteIdentityProvider removes the provider, its remote ids and all its
// protocols in one transaction.
func (s *Storage) DeleteIdentityProvider(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM federation_protocols WHERE idp_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete protocols: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM federation_idp_remote_ids WHERE idp_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete remote ids: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM federation_idps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Resource: "identity provider", ID: id}
	}

	return tx.Commit()
}

// identityProviderExists is re-checked by protocol writes to avoid orphans.
func (s *Storage) identityProviderExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM federation_idps WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check identity provider: %w", err)
	}
	return exists, nil
}

// CreateProtocol registers a protocol under an identity provider. The
// mapping reference is recorded without an existence check; resolution is
// deferred to authentication time.
func (s *Storage) CreateProtocol(ctx context.Context, proto *Protocol) error {
	exists, err := s.identityProviderExists(ctx, proto.IdPID)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Resource: "identity provider", ID: proto.IdPID}
	}

	now := time.Now().UTC()
	proto.CreatedAt = now
	proto.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO federation_protocols (idp_id, id, mapping_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		proto.IdPID, proto.ID, proto.MappingID, proto.CreatedAt, proto.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Resource: "protocol", ID: proto.ID,
				Detail: fmt.Sprintf("already exists under identity provider %q", proto.IdPID)}
		}
		return fmt.Errorf("failed to insert protocol: %w", err)
	}
	return nil
}

// GetProtocol returns one protocol scoped to its identity provider.
func (s *Storage) GetProtocol(ctx context.Context, idpID, protocolID string) (*Protocol, error) {
	proto := &Protocol{}
	err := s.db.QueryRowContext(ctx, `
		SELECT idp_id, id, mapping_id, created_at, updated_at
		FROM federation_protocols WHERE idp_id = $1 AND id = $2`, idpID, protocolID).Scan(
		&proto.IdPID, &proto.ID, &proto.MappingID, &proto.CreatedAt, &proto.UpdatedAt)
	if err == sql.ErrNoRows {
		exists, existsErr := s.identityProviderExists(ctx, idpID)
		if existsErr != nil {
			return nil, existsErr
		}
		if !exists {
			return nil, &NotFoundError{Resource: "identity provider", ID: idpID}
		}
		return nil, &NotFoundError{Resource: "protocol", ID: protocolID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol: %w", err)
	}
	return proto, nil
}

// ListProtocols returns the protocols under an identity provider, ordered by
// id. NotFound when the provider does not exist.
func (s *Storage) ListProtocols(ctx context.Context, idpID string) ([]*Protocol, error) {
	exists, err := s.identityProviderExists(ctx, idpID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Resource: "identity provider", ID: idpID}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idp_id, id, mapping_id, created_at, updated_at
		FROM federation_protocols WHERE idp_id = $1 ORDER BY id`, idpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	defer rows.Close()

	var protos []*Protocol
	for rows.Next() {
		proto := &Protocol{}
		if err := rows.Scan(&proto.IdPID, &proto.ID, &proto.MappingID,
			&proto.CreatedAt, &proto.UpdatedAt); err != nil {
			return nil, err
		}
		protos = append(protos, proto)
	}
	return protos, rows.Err()
}

// UpdateProtocol changes the mapping a protocol resolves through.
func (s *Storage) UpdateProtocol(ctx context.Context, idpID, protocolID, mappingID string) (*Protocol, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE federation_protocols SET mapping_id = $1, updated_at = $2
		WHERE idp_id = $3 AND id = $4`,
		mappingID, time.Now().UTC(), idpID, protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to update protocol: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &NotFoundError{Resource: "protocol", ID: protocolID}
	}
	return s.GetProtocol(ctx, idpID, protocolID)
}

// DeleteProtocol removes one protocol.
func (s *Storage) DeleteProtocol(ctx context.Context, idpID, protocolID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM federation_protocols WHERE idp_id = $1 AND id = $2`, idpID, protocolID)
	if err != nil {
		return fmt.Errorf("failed to delete protocol: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Resource: "protocol", ID: protocolID}
	}
	return nil
}
