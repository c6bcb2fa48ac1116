// Package commands contains CLI command implementations for the application.
package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/allisson/capvault/internal/app"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
)

// maxSecretLength bounds a passphrase or credential read from the terminal or stdin.
const maxSecretLength = 64 * 1024

var (
	errEmptySecret      = errors.New("value must not be empty")
	errSecretTooLong    = errors.New("value is too long")
	errSecretsDontMatch = errors.New("the two entries do not match")
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// readSecret prompts for a secret. On a terminal the input is not echoed; otherwise one
// line is read from the reader, so secrets can be piped in but never passed as flags.
// The caller must zero the returned slice.
func readSecret(tuple IOTuple, prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(tuple.Writer, prompt)

	var (
		secret []byte
		err    error
	)
	if f, ok := tuple.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err = term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(tuple.Writer)
	} else {
		secret, err = readLine(tuple.Reader)
	}
	if err != nil {
		cryptoDomain.Zero(secret)
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	return secret, nil
}

// readNewSecret prompts twice and fails when the entries differ.
func readNewSecret(tuple IOTuple, prompt string) ([]byte, error) {
	first, err := readSecret(tuple, prompt)
	if err != nil {
		return nil, err
	}
	second, err := readSecret(tuple, "Repeat: ")
	if err != nil {
		cryptoDomain.Zero(first)
		return nil, err
	}
	defer cryptoDomain.Zero(second)

	if !bytes.Equal(first, second) {
		cryptoDomain.Zero(first)
		return nil, errSecretsDontMatch
	}
	return first, nil
}

// readLine reads up to a newline one byte at a time, so nothing past the line is
// buffered and no copy of the secret is left behind in a reader buffer.
func readLine(r io.Reader) ([]byte, error) {
	line := make([]byte, 0, 128)
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				break
			}
			if len(line) == maxSecretLength {
				cryptoDomain.Zero(line)
				return nil, errSecretTooLong
			}
			if len(line) == cap(line) {
				grown := make([]byte, len(line), 2*cap(line))
				copy(grown, line)
				cryptoDomain.Zero(line)
				line = grown
			}
			line = append(line, b[0])
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			cryptoDomain.Zero(line)
			return nil, err
		}
	}
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

// outputJSON writes v as indented JSON.
func outputJSON(v any, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
