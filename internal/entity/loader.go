package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML descriptor file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file %s: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("descriptor file %s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes YAML descriptors. Unknown keys are rejected so typos in
// option names surface at load time.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return NewCatalog(), nil
		}
		return nil, fmt.Errorf("failed to decode descriptors: %w", err)
	}
	catalog.reindex()
	return &catalog, nil
}
