package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// CredentialRepo — хранилище credentials в PostgreSQL.
// Реализует secrets.Store.
type CredentialRepo struct {
	db DBTX
}

// NewCredentialRepo создаёт новый CredentialRepo.
func NewCredentialRepo(db DBTX) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Resolve возвращает свежую копию credential по id.
func (r *CredentialRepo) Resolve(ctx context.Context, id string) (*secrets.Credential, error) {
	query := `
		SELECT id, kind, secret, username, password, path, content
		FROM credentials
		WHERE id = $1
	`
	var cred secrets.Credential
	var kind string
	var username, path *string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&cred.ID,
		&kind,
		&cred.Secret,
		&username,
		&cred.Password,
		&path,
		&cred.Content,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", secrets.ErrCredentialNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	cred.Kind, err = secrets.ParseKind(kind)
	if err != nil {
		cred.Wipe()
		return nil, fmt.Errorf("credential %s: %w", id, err)
	}
	cred.Username = deref(username)
	cred.Path = deref(path)
	return &cred, nil
}

// Put создаёт или заменяет credential.
func (r *CredentialRepo) Put(ctx context.Context, cred *secrets.Credential) error {
	query := `
		INSERT INTO credentials (id, kind, secret, username, password, path, content, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind, secret = EXCLUDED.secret, username = EXCLUDED.username,
		    password = EXCLUDED.password, path = EXCLUDED.path, content = EXCLUDED.content,
		    updated_at = now()
	`
	_, err := r.db.Exec(ctx, query,
		cred.ID,
		string(cred.Kind),
		cred.Secret,
		nullString(cred.Username),
		cred.Password,
		nullString(cred.Path),
		cred.Content,
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Delete удаляет credential.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
