package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// ErrInvalidKeyLength is returned by NewCredentialRepo for keys that are not
// 32 bytes.
var ErrInvalidKeyLength = errors.New("credential key must be 32 bytes")

const upsertCredential = `
	INSERT INTO credentials (service, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(service) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

// CredentialRepo keeps Bitbucket and proxy secrets sealed with AES-256-GCM.
// Only ciphertext reaches the database.
type CredentialRepo struct {
	db   *DB
	seal *sealer // nil when no key is configured.
}

// NewCredentialRepo creates a CredentialRepo. A nil key yields a repo whose
// operations all return driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, key []byte) (*CredentialRepo, error) {
	repo := &CredentialRepo{db: db}
	if key == nil {
		return repo, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(key))
	}

	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	repo.seal = s
	return repo, nil
}

// Set stores or replaces the credential for service.
func (r *CredentialRepo) Set(ctx context.Context, service, plaintext string) error {
	return r.SetAll(ctx, map[string]string{service: plaintext})
}

// SetAll stores every service/value pair in one transaction: either all of
// them are written or none is.
func (r *CredentialRepo) SetAll(ctx context.Context, values map[string]string) error {
	if r.seal == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	sealed := make(map[string]string, len(values))
	for service, plaintext := range values {
		ct, err := r.seal.encrypt(plaintext)
		if err != nil {
			return fmt.Errorf("encrypt credential %q: %w", service, err)
		}
		sealed[service] = ct
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credential write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, service := range slices.Sorted(maps.Keys(sealed)) {
		if _, err := tx.ExecContext(ctx, upsertCredential, service, sealed[service]); err != nil {
			return fmt.Errorf("set credential %q: %w", service, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// Get returns ("", nil) if service has no credential.
func (r *CredentialRepo) Get(ctx context.Context, service string) (string, error) {
	if r.seal == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	var sealed string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT value FROM credentials WHERE service = ?`, service).Scan(&sealed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("get credential %q: %w", service, err)
	}

	plaintext, err := r.seal.decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %q: %w", service, err)
	}
	return plaintext, nil
}

// List returns every stored credential, decrypted, ordered by service.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	if r.seal == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	rows, err := r.db.Reader.QueryContext(ctx, `SELECT id, service, value, updated_at FROM credentials ORDER BY service`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

func (r *CredentialRepo) scanCredential(rows *sql.Rows) (model.Credential, error) {
	var (
		cred              model.Credential
		sealed, updatedAt string
		err               error
	)
	if err = rows.Scan(&cred.ID, &cred.Service, &sealed, &updatedAt); err != nil {
		return cred, fmt.Errorf("scan credential: %w", err)
	}
	if cred.Value, err = r.seal.decrypt(sealed); err != nil {
		return cred, fmt.Errorf("decrypt credential %q: %w", cred.Service, err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return cred, fmt.Errorf("parse updated_at for credential %q: %w", cred.Service, err)
	}
	return cred, nil
}

// Delete removes the credential for service. A missing credential is not an
// error.
func (r *CredentialRepo) Delete(ctx context.Context, service string) error {
	if r.seal == nil {
		return driven.ErrEncryptionKeyNotSet
	}
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM credentials WHERE service = ?`, service); err != nil {
		return fmt.Errorf("delete credential %q: %w", service, err)
	}
	return nil
}

// sealer encrypts values as base64(nonce || ciphertext || tag).
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

func (s *sealer) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (s *sealer) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	n := s.gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}
