// Package repository loads the routing table from YAML.
package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	routerDomain "github.com/allisson/capvault/internal/router/domain"
)

// TableLoader reads the routing table from one YAML file.
type TableLoader struct {
	path string
}

// NewTableLoader creates a loader for path.
func NewTableLoader(path string) *TableLoader {
	return &TableLoader{path: path}
}

// Path returns the routing table file.
func (l *TableLoader) Path() string {
	return l.path
}

// Load parses the routing table. A missing file yields an empty table, so free text
// falls back to the configured default capability.
func (l *TableLoader) Load(ctx context.Context) (*routerDomain.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &routerDomain.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read routing table: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var table routerDomain.Table
	if err := dec.Decode(&table); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", routerDomain.ErrInvalidRoutingTable, err)
	}
	return &table, nil
}
