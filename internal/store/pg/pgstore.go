// Package pg is the durable Postgres implementation of the secret lifecycle
// service. The archive-then-update sequence runs inside one transaction with
// a row lock on the secret so concurrent updates cannot interleave.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sekret.org/internal/crypto"
	"sekret.org/internal/identity"
	"sekret.org/internal/ids"
	"sekret.org/internal/secrets"
)

type Store struct {
	db       *sql.DB
	envelope *crypto.Envelope
}

var _ secrets.Service = (*Store)(nil)

// Open connects to Postgres with tuned pool defaults.
func Open(dsn string, envelope *crypto.Envelope) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, envelope: envelope}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB, envelope *crypto.Envelope) *Store {
	return &Store{db: db, envelope: envelope}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Create(ctx context.Context, ident identity.Identity, in secrets.CreateInput) (secrets.Secret, error) {
	if !ident.CanCreate() {
		return secrets.Secret{}, fmt.Errorf("%w: role %q cannot create secrets", secrets.ErrForbidden, ident.Role)
	}
	if strings.TrimSpace(in.Name) == "" {
		return secrets.Secret{}, fmt.Errorf("%w: name is required", secrets.ErrInvalidInput)
	}
	ciphertext, err := s.envelope.Seal([]byte(in.Value))
	if err != nil {
		return secrets.Secret{}, err
	}

	sec := secrets.Secret{
		ID:          ids.New(),
		Name:        strings.TrimSpace(in.Name),
		Type:        strings.TrimSpace(in.Type),
		Description: in.Description,
		Tags:        secrets.NormalizeTags(in.Tags),
		OwnerID:     ident.UserID,
		OwnerEmail:  ident.Email,
		Version:     1,
	}
	err = s.db.QueryRowContext(ctx, `
		insert into secrets (id, name, type, ciphertext, description, tags, owner_id, owner_email, version)
		values ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		returning created_at, updated_at
	`, sec.ID, sec.Name, sec.Type, ciphertext, sec.Description, secrets.EncodeTags(sec.Tags), sec.OwnerID, sec.OwnerEmail).
		Scan(&sec.CreatedAt, &sec.UpdatedAt)
	if err != nil {
		return secrets.Secret{}, err
	}
	return sec, nil
}

func (s *Store) List(ctx context.Context, ident identity.Identity) ([]secrets.Secret, error) {
	query := `
		select id, name, type, description, tags, owner_id, owner_email, version, created_at, updated_at
		from secrets
		where deleted_at is null
		order by updated_at desc
	`
	args := []any{}
	if !ident.IsAdmin() {
		query = `
			select id, name, type, description, tags, owner_id, owner_email, version, created_at, updated_at
			from secrets
			where owner_id = $1 and deleted_at is null
			order by updated_at desc
		`
		args = append(args, ident.UserID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]secrets.Secret, 0)
	for rows.Next() {
		var (
			sec     secrets.Secret
			rawTags []byte
		)
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Type, &sec.Description, &rawTags,
			&sec.OwnerID, &sec.OwnerEmail, &sec.Version, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, err
		}
		sec.Tags = secrets.DecodeTags(rawTags)
		result = append(result, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Get(ctx context.Context, ident identity.Identity, secretID string, reveal bool) (secrets.Secret, error) {
	query := `
		select id, name, type, ciphertext, description, tags, owner_id, owner_email, version, created_at, updated_at
		from secrets
		where id = $1 and deleted_at is null
	`
	args := []any{secretID}
	if !ident.IsAdmin() {
		query += ` and owner_id = $2`
		args = append(args, ident.UserID)
	}

	var (
		sec        secrets.Secret
		ciphertext []byte
		rawTags    []byte
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&sec.ID, &sec.Name, &sec.Type, &ciphertext,
		&sec.Description, &rawTags, &sec.OwnerID, &sec.OwnerEmail, &sec.Version, &sec.CreatedAt, &sec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return secrets.Secret{}, secrets.ErrNotFound
	}
	if err != nil {
		return secrets.Secret{}, err
	}
	sec.Tags = secrets.DecodeTags(rawTags)

	if reveal {
		plaintext, err := s.envelope.Open(ciphertext)
		if err != nil {
			return secrets.Secret{}, err
		}
		sec.Value = string(plaintext)
	} else {
		sec.Value = secrets.MaskedValue
	}
	return sec, nil
}

func (s *Store) Update(ctx context.Context, ident identity.Identity, secretID string, upd secrets.UpdateInput) (int, error) {
	if upd.Value != nil && *upd.Value == "" {
		return 0, fmt.Errorf("%w: value must not be empty", secrets.ErrInvalidInput)
	}
	var ciphertext []byte
	if upd.Value != nil {
		var err error
		ciphertext, err = s.envelope.Seal([]byte(*upd.Value))
		if err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the row so concurrent updates serialize on the version read.
	lockQuery := `select version, ciphertext from secrets where id = $1 and deleted_at is null for update`
	lockArgs := []any{secretID}
	if !ident.IsAdmin() {
		lockQuery = `select version, ciphertext from secrets where id = $1 and owner_id = $2 and deleted_at is null for update`
		lockArgs = append(lockArgs, ident.UserID)
	}
	var (
		version       int
		oldCiphertext []byte
	)
	err = tx.QueryRowContext(ctx, lockQuery, lockArgs...).Scan(&version, &oldCiphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, secrets.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Value != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into secret_versions (id, secret_id, version, ciphertext, updated_by, updated_by_email)
			values ($1, $2, $3, $4, $5, $6)
		`, ids.New(), secretID, version, oldCiphertext, ident.UserID, ident.Email); err != nil {
			return 0, err
		}
		setClauses = append(setClauses, fmt.Sprintf("ciphertext = $%d", idx), "version = version + 1")
		args = append(args, ciphertext)
		idx++
		version++
	}
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if upd.Tags != nil {
		setClauses = append(setClauses, fmt.Sprintf("tags = $%d", idx))
		args = append(args, secrets.EncodeTags(upd.Tags))
		idx++
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, secretID)
	query := fmt.Sprintf(`update secrets set %s where id = $%d`, strings.Join(setClauses, ", "), idx)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) Delete(ctx context.Context, ident identity.Identity, secretID string) error {
	query := `update secrets set deleted_at = now() where id = $1 and deleted_at is null`
	args := []any{secretID}
	if !ident.IsAdmin() {
		query = `update secrets set deleted_at = now() where id = $1 and owner_id = $2 and deleted_at is null`
		args = append(args, ident.UserID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return secrets.ErrNotFound
	}
	return nil
}

func (s *Store) ListVersions(ctx context.Context, ident identity.Identity, secretID string) ([]secrets.SecretVersion, error) {
	existsQuery := `select 1 from secrets where id = $1 and deleted_at is null`
	existsArgs := []any{secretID}
	if !ident.IsAdmin() {
		existsQuery += ` and owner_id = $2`
		existsArgs = append(existsArgs, ident.UserID)
	}
	var one int
	err := s.db.QueryRowContext(ctx, existsQuery, existsArgs...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, secrets.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, secret_id, version, ciphertext, updated_by, updated_by_email, created_at
		from secret_versions
		where secret_id = $1
		order by version desc
	`, secretID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]secrets.SecretVersion, 0)
	for rows.Next() {
		var v secrets.SecretVersion
		if err := rows.Scan(&v.ID, &v.SecretID, &v.Version, &v.Ciphertext,
			&v.UpdatedBy, &v.UpdatedByEmail, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
