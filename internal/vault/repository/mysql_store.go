package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/capvault/internal/database"
	apperrors "github.com/allisson/capvault/internal/errors"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// MySQLStore implements vault persistence for MySQL. It also serves SQLite, which accepts
// the same placeholders and stores the binary record id as a BLOB.
type MySQLStore struct {
	db        *sql.DB
	txManager database.TxManager
}

// NewMySQLStore creates a new MySQL (or SQLite) vault store.
func NewMySQLStore(db *sql.DB, txManager database.TxManager) *MySQLStore {
	return &MySQLStore{db: db, txManager: txManager}
}

// GetKeyRing retrieves the keyring with the highest generation.
func (m *MySQLStore) GetKeyRing(ctx context.Context) (*vaultDomain.KeyRing, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT key_id, generation, public_key, wrapped_private_key, wrap_mode, passphrase_hash, created_at
			  FROM vault_keyrings
			  ORDER BY generation DESC
			  LIMIT 1`

	var keyRing vaultDomain.KeyRing
	err := querier.QueryRowContext(ctx, query).Scan(
		&keyRing.KeyID,
		&keyRing.Generation,
		&keyRing.PublicKey,
		&keyRing.WrappedPrivateKey,
		&keyRing.WrapMode,
		&keyRing.PassphraseHash,
		&keyRing.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vaultDomain.ErrKeyMissing
		}
		return nil, apperrors.Wrap(err, "failed to get keyring")
	}
	return &keyRing, nil
}

// CreateKeyRing inserts the first keyring. Fails with ErrKeyRingExists if any exists.
func (m *MySQLStore) CreateKeyRing(ctx context.Context, keyRing *vaultDomain.KeyRing) error {
	return m.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, m.db)

		var count int
		if err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_keyrings`).Scan(&count); err != nil {
			return apperrors.Wrap(err, "failed to count keyrings")
		}
		if count > 0 {
			return vaultDomain.ErrKeyRingExists
		}
		return m.insertKeyRing(ctx, keyRing)
	})
}

// GetRecord retrieves the credential of providerID.
func (m *MySQLStore) GetRecord(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, provider_id, alg, ver, kid, wk, n, ct, tag, created_at
			  FROM vault_credentials
			  WHERE provider_id = ?`

	record, err := scanMySQLRecord(querier.QueryRowContext(ctx, query, providerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vaultDomain.ErrCredentialNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get credential")
	}
	return record, nil
}

// ListRecords retrieves every credential ordered by provider.
func (m *MySQLStore) ListRecords(ctx context.Context) ([]*vaultDomain.CredentialRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, provider_id, alg, ver, kid, wk, n, ct, tag, created_at
			  FROM vault_credentials
			  ORDER BY provider_id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list credentials")
	}
	defer func() { _ = rows.Close() }()

	var records []*vaultDomain.CredentialRecord
	for rows.Next() {
		record, err := scanMySQLRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan credential")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate credentials")
	}
	return records, nil
}

// SaveRecord replaces the credential of record.ProviderID.
func (m *MySQLStore) SaveRecord(ctx context.Context, record *vaultDomain.CredentialRecord) error {
	return m.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, m.db)
		if _, err := querier.ExecContext(ctx, `DELETE FROM vault_credentials WHERE provider_id = ?`, record.ProviderID); err != nil {
			return apperrors.Wrap(err, "failed to replace credential")
		}
		return m.insertRecord(ctx, record)
	})
}

// DeleteRecord removes the credential of providerID.
func (m *MySQLStore) DeleteRecord(ctx context.Context, providerID string) error {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM vault_credentials WHERE provider_id = ?`, providerID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete credential")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to delete credential")
	}
	if affected == 0 {
		return vaultDomain.ErrCredentialNotFound
	}
	return nil
}

// Publish inserts the new keyring and replaces every credential in one transaction.
func (m *MySQLStore) Publish(
	ctx context.Context,
	keyRing *vaultDomain.KeyRing,
	records []*vaultDomain.CredentialRecord,
) error {
	return m.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := m.insertKeyRing(ctx, keyRing); err != nil {
			return err
		}
		querier := database.GetTx(ctx, m.db)
		if _, err := querier.ExecContext(ctx, `DELETE FROM vault_credentials`); err != nil {
			return apperrors.Wrap(err, "failed to clear credentials")
		}
		for _, record := range records {
			if err := m.insertRecord(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MySQLStore) insertKeyRing(ctx context.Context, keyRing *vaultDomain.KeyRing) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO vault_keyrings (generation, key_id, public_key, wrapped_private_key, wrap_mode, passphrase_hash, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		keyRing.Generation,
		keyRing.KeyID,
		keyRing.PublicKey,
		keyRing.WrappedPrivateKey,
		keyRing.WrapMode,
		keyRing.PassphraseHash,
		keyRing.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create keyring")
	}
	return nil
}

func (m *MySQLStore) insertRecord(ctx context.Context, record *vaultDomain.CredentialRecord) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO vault_credentials (id, provider_id, alg, ver, kid, wk, n, ct, tag, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := record.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal credential id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		record.ProviderID,
		record.Algorithm,
		record.Version,
		record.KeyID,
		record.WrappedKey,
		record.Nonce,
		record.Ciphertext,
		record.Tag,
		record.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create credential")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMySQLRecord(row rowScanner) (*vaultDomain.CredentialRecord, error) {
	var record vaultDomain.CredentialRecord
	var id []byte
	if err := row.Scan(
		&id,
		&record.ProviderID,
		&record.Algorithm,
		&record.Version,
		&record.KeyID,
		&record.WrappedKey,
		&record.Nonce,
		&record.Ciphertext,
		&record.Tag,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := record.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal credential id")
	}
	return &record, nil
}
