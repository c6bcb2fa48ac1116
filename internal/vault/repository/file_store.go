package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/allisson/capvault/internal/errors"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

const (
	currentFile   = "CURRENT"
	keyRingFile   = "keyring.cbor"
	credentialDir = "credentials"
	recordExt     = ".cred"
	genPrefix     = "gen-"
	tmpSuffix     = ".tmp"
)

// PublishStage names a point inside FileStore.Publish where a hook may interrupt it.
type PublishStage string

const (
	// StageBeforeSwap runs after the new generation is fully written, before CURRENT moves.
	StageBeforeSwap PublishStage = "before-swap"
	// StageAfterSwap runs after CURRENT moved, before the old generation is removed.
	StageAfterSwap PublishStage = "after-swap"
)

// FileStore keeps the vault under one directory:
//
//	CURRENT                      name of the live generation
//	gen-000001/keyring.cbor      keyring of that generation
//	gen-000001/credentials/*.cred one CBOR record per provider
//
// Publish writes a complete new generation and then renames a new CURRENT into place,
// so readers see either the old or the new generation, never a mix.
type FileStore struct {
	mu   sync.Mutex
	root string
	hook func(stage PublishStage) error
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithPublishHook installs fn to run at each PublishStage. A non-nil error aborts Publish
// on the spot, leaving the directory as a crash at that point would.
func WithPublishHook(fn func(stage PublishStage) error) FileStoreOption {
	return func(s *FileStore) { s.hook = fn }
}

// NewFileStore opens (creating if needed) the vault directory and removes leftovers of
// an interrupted Publish.
func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, apperrors.Wrap(err, "failed to create vault directory")
	}
	s := &FileStore{root: root}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cleanup(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetKeyRing returns the keyring of the live generation.
func (s *FileStore) GetKeyRing(_ context.Context) (*vaultDomain.KeyRing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.currentGen()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, gen, keyRingFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrKeyRingCorrupt, err)
	}
	keyRing, err := decodeKeyRing(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrKeyRingCorrupt, err)
	}
	return keyRing, nil
}

// CreateKeyRing publishes the first generation.
func (s *FileStore) CreateKeyRing(ctx context.Context, keyRing *vaultDomain.KeyRing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.currentGen(); err == nil {
		return vaultDomain.ErrKeyRingExists
	} else if !errors.Is(err, vaultDomain.ErrKeyMissing) {
		return err
	}
	return s.publishLocked(ctx, keyRing, nil)
}

// GetRecord reads the record of providerID from the live generation.
func (s *FileStore) GetRecord(_ context.Context, providerID string) (*vaultDomain.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.credentialsDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, providerID+recordExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, vaultDomain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read credential")
	}
	record, err := decodeRecord(data)
	if err != nil || record.ProviderID != providerID {
		return nil, fmt.Errorf("%w: %s", vaultDomain.ErrCorrupt, providerID)
	}
	return record, nil
}

// ListRecords returns every record of the live generation sorted by provider. A blob
// that no longer decodes is returned as a record carrying only its ProviderID, so it
// stays visible and fails decryption as corrupt.
func (s *FileStore) ListRecords(_ context.Context) ([]*vaultDomain.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.credentialsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list credentials")
	}

	records := make([]*vaultDomain.CredentialRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		providerID := strings.TrimSuffix(name, recordExt)
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to read credential")
		}
		record, err := decodeRecord(data)
		if err != nil || record.ProviderID != providerID {
			record = &vaultDomain.CredentialRecord{ProviderID: providerID}
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ProviderID < records[j].ProviderID })
	return records, nil
}

// SaveRecord atomically replaces the record of record.ProviderID in the live generation.
func (s *FileStore) SaveRecord(_ context.Context, record *vaultDomain.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.credentialsDir()
	if err != nil {
		return err
	}
	data, err := encodeRecord(record)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode credential")
	}
	return writeFileAtomic(filepath.Join(dir, record.ProviderID+recordExt), data)
}

// DeleteRecord removes the record of providerID.
func (s *FileStore) DeleteRecord(_ context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.credentialsDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, providerID+recordExt))
	if errors.Is(err, fs.ErrNotExist) {
		return vaultDomain.ErrCredentialNotFound
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to delete credential")
	}
	return syncDir(dir)
}

// Publish replaces the keyring and the whole record set in one step.
func (s *FileStore) Publish(
	ctx context.Context,
	keyRing *vaultDomain.KeyRing,
	records []*vaultDomain.CredentialRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(ctx, keyRing, records)
}

func (s *FileStore) publishLocked(
	ctx context.Context,
	keyRing *vaultDomain.KeyRing,
	records []*vaultDomain.CredentialRecord,
) error {
	previous, err := s.currentGen()
	if err != nil && !errors.Is(err, vaultDomain.ErrKeyMissing) {
		return err
	}

	next := fmt.Sprintf("%s%06d", genPrefix, keyRing.Generation)
	if next == previous {
		return apperrors.Wrapf(apperrors.ErrConflict, "generation %d is already live", keyRing.Generation)
	}
	nextDir := filepath.Join(s.root, next)
	if err := os.RemoveAll(nextDir); err != nil {
		return apperrors.Wrap(err, "failed to clear generation directory")
	}
	if err := os.MkdirAll(filepath.Join(nextDir, credentialDir), 0o700); err != nil {
		return apperrors.Wrap(err, "failed to create generation directory")
	}

	data, err := encodeKeyRing(keyRing)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode keyring")
	}
	if err := writeFileAtomic(filepath.Join(nextDir, keyRingFile), data); err != nil {
		return err
	}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := encodeRecord(record)
		if err != nil {
			return apperrors.Wrap(err, "failed to encode credential")
		}
		if err := writeFileAtomic(filepath.Join(nextDir, credentialDir, record.ProviderID+recordExt), data); err != nil {
			return err
		}
	}

	if err := s.runHook(StageBeforeSwap); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.root, currentFile), []byte(next+"\n")); err != nil {
		return err
	}
	if err := s.runHook(StageAfterSwap); err != nil {
		return err
	}

	if previous != "" {
		// Unreferenced generations are also swept by cleanup on the next open.
		_ = os.RemoveAll(filepath.Join(s.root, previous))
	}
	return nil
}

func (s *FileStore) runHook(stage PublishStage) error {
	if s.hook == nil {
		return nil
	}
	return s.hook(stage)
}

// currentGen returns the live generation directory name or ErrKeyMissing.
func (s *FileStore) currentGen() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", vaultDomain.ErrKeyMissing
	}
	if err != nil {
		return "", apperrors.Wrap(err, "failed to read CURRENT")
	}
	gen := strings.TrimSpace(string(data))
	if !strings.HasPrefix(gen, genPrefix) || strings.ContainsAny(gen, `/\`) {
		return "", fmt.Errorf("%w: invalid CURRENT pointer", vaultDomain.ErrKeyRingCorrupt)
	}
	return gen, nil
}

func (s *FileStore) credentialsDir() (string, error) {
	gen, err := s.currentGen()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, gen, credentialDir), nil
}

// cleanup removes temporary files and generations CURRENT does not point to.
func (s *FileStore) cleanup() error {
	current, err := s.currentGen()
	if err != nil && !errors.Is(err, vaultDomain.ErrKeyMissing) {
		return err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return apperrors.Wrap(err, "failed to read vault directory")
	}
	for _, entry := range entries {
		name := entry.Name()
		stale := strings.HasSuffix(name, tmpSuffix) ||
			(entry.IsDir() && strings.HasPrefix(name, genPrefix) && name != current)
		if stale {
			if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
				return apperrors.Wrap(err, "failed to remove stale vault entry")
			}
		}
	}
	return nil
}

// writeFileAtomic writes data to a temporary sibling, syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return apperrors.Wrap(err, "failed to create temporary file")
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, "failed to write temporary file")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, "failed to sync temporary file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, "failed to close temporary file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, "failed to rename temporary file")
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return apperrors.Wrap(err, "failed to open directory")
	}
	defer func() { _ = d.Close() }()
	// Some filesystems refuse fsync on directories; the rename is still atomic there.
	_ = d.Sync()
	return nil
}
