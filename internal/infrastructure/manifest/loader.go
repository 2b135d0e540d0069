// Package manifest loads the gateway manifest from YAML and watches the file
// for new versions.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"gopkg.in/yaml.v3"
)

// Parse decodes a manifest. Fields missing from the document keep the
// values of base.
func Parse(data []byte, base offline.Manifest) (offline.Manifest, error) {
	m := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return offline.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return offline.Manifest{}, err
	}
	return m, nil
}

// Load reads path, falling back to base when the file does not exist.
func Load(path string, base offline.Manifest) (offline.Manifest, error) {
	if path == "" {
		return base, base.Validate()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return base, base.Validate()
	}
	if err != nil {
		return offline.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data, base)
}
