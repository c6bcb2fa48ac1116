package domain

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/allisson/capvault/internal/errors"
	"github.com/allisson/capvault/internal/secret"
)

// CredentialSession is the request-scoped holder of one decrypted credential. It is
// created by a single decrypt call, owned by the request that made it, never shared and
// never persisted. Close zeroes the plaintext before it returns, even if a borrower is
// still inside Use.
type CredentialSession struct {
	ID         uuid.UUID
	ProviderID string
	KeyID      string
	Version    int

	buf       *secret.Buffer
	closeOnce sync.Once
	onClose   func()
}

// NewCredentialSession moves plaintext into protected memory; plaintext is zeroed.
// onClose, if set, runs once after the contents are wiped.
func NewCredentialSession(record *CredentialRecord, plaintext []byte, onClose func()) (*CredentialSession, error) {
	buf, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, err
	}
	return &CredentialSession{
		ID:         uuid.Must(uuid.NewV7()),
		ProviderID: record.ProviderID,
		KeyID:      record.KeyID,
		Version:    record.Version,
		buf:        buf,
		onClose:    onClose,
	}, nil
}

// Use lends the credential to fn. The slice must not outlive fn.
func (s *CredentialSession) Use(fn func(credential []byte) error) error {
	err := s.buf.Use(fn)
	if errors.Is(err, secret.ErrClosed) {
		return ErrSessionClosed
	}
	return err
}

// Close zeroizes the credential. It is safe to call more than once and from any goroutine.
func (s *CredentialSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.buf.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}

// Closed reports whether the session has ended.
func (s *CredentialSession) Closed() bool {
	return s.buf.Closed()
}

// LogValue implements slog.LogValuer; the credential itself is never rendered.
func (s *CredentialSession) LogValue() slog.Value {
	state := "open"
	if s.Closed() {
		state = "closed"
	}
	return slog.GroupValue(
		slog.String("session_id", s.ID.String()),
		slog.String("provider", s.ProviderID),
		slog.String("key_id", s.KeyID),
		slog.String("state", state),
	)
}
