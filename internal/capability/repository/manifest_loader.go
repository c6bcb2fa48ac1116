// Package repository loads capability descriptors from YAML manifests.
package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
)

// manifest is the on-disk document:
//
//	capabilities:
//	  - name: web-search
//	    kind: skill
//	    invocation_target: https://127.0.0.1:9000/web
//	    requires_credential: true
//	    credential_provider_id: provider-a
type manifest struct {
	Capabilities []capabilityDomain.Descriptor `yaml:"capabilities"`
}

// ManifestLoader reads descriptors from one YAML file or from every *.yaml / *.yml file
// of a directory, in lexical order.
type ManifestLoader struct {
	path string
}

// NewManifestLoader creates a loader for path.
func NewManifestLoader(path string) *ManifestLoader {
	return &ManifestLoader{path: path}
}

// Path returns the manifest file or directory.
func (l *ManifestLoader) Path() string {
	return l.path
}

// Load parses every manifest document. A missing path yields an empty list. Unknown
// keys are rejected so typos do not silently drop settings.
func (l *ManifestLoader) Load(ctx context.Context) ([]capabilityDomain.Descriptor, error) {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}

	files := []string{l.path}
	if info.IsDir() {
		files, err = manifestFiles(l.path)
		if err != nil {
			return nil, err
		}
	}

	var descriptors []capabilityDomain.Descriptor
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := decodeManifest(file)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, loaded...)
	}
	return descriptors, nil
}

func manifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !IsYAML(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func decodeManifest(file string) ([]capabilityDomain.Descriptor, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %v", capabilityDomain.ErrInvalidManifest, filepath.Base(file), err)
	}
	return m.Capabilities, nil
}

// IsYAML reports whether name has a YAML extension.
func IsYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
