package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/capvault/internal/database"
	apperrors "github.com/allisson/capvault/internal/errors"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// PostgreSQLStore implements vault persistence for PostgreSQL databases. Keyrings are
// append-only rows keyed by generation; the live keyring is the highest generation.
type PostgreSQLStore struct {
	db        *sql.DB
	txManager database.TxManager
}

// NewPostgreSQLStore creates a new PostgreSQL vault store.
func NewPostgreSQLStore(db *sql.DB, txManager database.TxManager) *PostgreSQLStore {
	return &PostgreSQLStore{db: db, txManager: txManager}
}

// GetKeyRing retrieves the keyring with the highest generation.
func (p *PostgreSQLStore) GetKeyRing(ctx context.Context) (*vaultDomain.KeyRing, error) {
	querier := database.GetTx(ctx, p.db)

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
func (p *PostgreSQLStore) CreateKeyRing(ctx context.Context, keyRing *vaultDomain.KeyRing) error {
	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, p.db)

		var count int
		if err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_keyrings`).Scan(&count); err != nil {
			return apperrors.Wrap(err, "failed to count keyrings")
		}
		if count > 0 {
			return vaultDomain.ErrKeyRingExists
		}
		return p.insertKeyRing(ctx, keyRing)
	})
}

// GetRecord retrieves the credential of providerID.
func (p *PostgreSQLStore) GetRecord(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, provider_id, alg, ver, kid, wk, n, ct, tag, created_at
			  FROM vault_credentials
			  WHERE provider_id = $1`

	var record vaultDomain.CredentialRecord
	err := querier.QueryRowContext(ctx, query, providerID).Scan(
		&record.ID,
		&record.ProviderID,
		&record.Algorithm,
		&record.Version,
		&record.KeyID,
		&record.WrappedKey,
		&record.Nonce,
		&record.Ciphertext,
		&record.Tag,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vaultDomain.ErrCredentialNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get credential")
	}
	return &record, nil
}

// ListRecords retrieves every credential ordered by provider.
func (p *PostgreSQLStore) ListRecords(ctx context.Context) ([]*vaultDomain.CredentialRecord, error) {
	querier := database.GetTx(ctx, p.db)

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
		var record vaultDomain.CredentialRecord
		if err := rows.Scan(
			&record.ID,
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
			return nil, apperrors.Wrap(err, "failed to scan credential")
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate credentials")
	}
	return records, nil
}

// SaveRecord replaces the credential of record.ProviderID.
func (p *PostgreSQLStore) SaveRecord(ctx context.Context, record *vaultDomain.CredentialRecord) error {
	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, p.db)
		if _, err := querier.ExecContext(ctx, `DELETE FROM vault_credentials WHERE provider_id = $1`, record.ProviderID); err != nil {
			return apperrors.Wrap(err, "failed to replace credential")
		}
		return p.insertRecord(ctx, record)
	})
}

// DeleteRecord removes the credential of providerID.
func (p *PostgreSQLStore) DeleteRecord(ctx context.Context, providerID string) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM vault_credentials WHERE provider_id = $1`, providerID)
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
func (p *PostgreSQLStore) Publish(
	ctx context.Context,
	keyRing *vaultDomain.KeyRing,
	records []*vaultDomain.CredentialRecord,
) error {
	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.insertKeyRing(ctx, keyRing); err != nil {
			return err
		}
		querier := database.GetTx(ctx, p.db)
		if _, err := querier.ExecContext(ctx, `DELETE FROM vault_credentials`); err != nil {
			return apperrors.Wrap(err, "failed to clear credentials")
		}
		for _, record := range records {
			if err := p.insertRecord(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *PostgreSQLStore) insertKeyRing(ctx context.Context, keyRing *vaultDomain.KeyRing) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO vault_keyrings (generation, key_id, public_key, wrapped_private_key, wrap_mode, passphrase_hash, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

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

func (p *PostgreSQLStore) insertRecord(ctx context.Context, record *vaultDomain.CredentialRecord) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO vault_credentials (id, provider_id, alg, ver, kid, wk, n, ct, tag, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
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
