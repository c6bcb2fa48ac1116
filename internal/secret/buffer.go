// Package secret holds sensitive bytes (private keys, decrypted credentials) in memory
// that is kept out of swap and core dumps where the platform allows it, and that is
// zeroed as soon as the owner closes it.
package secret

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when a closed Buffer is accessed.
var ErrClosed = errors.New("secret: buffer closed")

// Buffer is a fixed-size secret region. Readers borrow the contents through Use;
// Close zeroes the contents immediately, even while a borrower is still running,
// and releases the memory once the last borrower returns.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	length    int
	locked    bool
	borrowers int
	closed    bool
	released  bool
}

// New allocates a zeroed buffer of the given size.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	data, locked, err := allocate(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: data, length: size, locked: locked}, nil
}

// NewFromBytes copies source into a new buffer and zeroes source in place.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}
	b, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(b.data, source)
	Zero(source)
	return b, nil
}

// Use calls fn with the secret contents. The slice is only valid inside fn and must
// not be retained.
func (b *Buffer) Use(fn func(data []byte) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.borrowers++
	data := b.data[:b.length]
	b.mu.Unlock()

	defer b.giveBack()
	return fn(data)
}

// Len returns the size of the secret.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Locked reports whether the memory is pinned against swapping.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close zeroes the contents before returning. Release of the backing memory waits
// for outstanding borrowers. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)

	if b.borrowers > 0 {
		return nil
	}
	return b.releaseLocked()
}

func (b *Buffer) giveBack() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.borrowers--
	if b.closed && b.borrowers == 0 {
		// Nothing to report to the borrower; the contents are already zero.
		_ = b.releaseLocked()
	}
}

func (b *Buffer) releaseLocked() error {
	if b.released {
		return nil
	}
	b.released = true
	err := release(b.data, b.locked)
	b.data = nil
	return err
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}
