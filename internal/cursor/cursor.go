// Package cursor encodes and decodes connection cursors.
// Cursors are opaque base64-encoded JSON objects carrying the connection
// type, the ordering they were issued under and a row offset.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const version = 1

type payload struct {
	Version  int    `json:"v"`
	TypeName string `json:"t"`
	OrderKey string `json:"k,omitempty"`
	Offset   int    `json:"o"`
}

// EncodeCursor builds an opaque cursor pointing at offset within a
// connection of typeName ordered by orderKey.
func EncodeCursor(typeName, orderKey string, offset int) string {
	data, err := json.Marshal(payload{
		Version:  version,
		TypeName: typeName,
		OrderKey: orderKey,
		Offset:   offset,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(raw string) (typeName, orderKey string, offset int, err error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid cursor: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", 0, fmt.Errorf("invalid cursor format")
	}
	if p.Version != version {
		return "", "", 0, fmt.Errorf("invalid cursor format: unsupported version %d", p.Version)
	}
	if p.TypeName == "" {
		return "", "", 0, fmt.Errorf("invalid cursor: missing type")
	}
	if p.Offset < 0 {
		return "", "", 0, fmt.Errorf("invalid cursor: negative offset")
	}
	return p.TypeName, p.OrderKey, p.Offset, nil
}

// ValidateCursor confirms the cursor matches the expected query context.
func ValidateCursor(expectedType, expectedOrderKey, actualType, actualOrderKey string) error {
	if actualType != expectedType {
		return fmt.Errorf("cursor type mismatch: expected %s, got %s", expectedType, actualType)
	}
	if actualOrderKey != expectedOrderKey {
		return fmt.Errorf("cursor order mismatch: expected %q, got %q", expectedOrderKey, actualOrderKey)
	}
	return nil
}

// After decodes raw, validates it and returns the offset of the first row
// following the cursor.
func After(raw, expectedType, expectedOrderKey string) (int, error) {
	typeName, orderKey, offset, err := DecodeCursor(raw)
	if err != nil {
		return 0, err
	}
	if err := ValidateCursor(expectedType, expectedOrderKey, typeName, orderKey); err != nil {
		return 0, err
	}
	return offset + 1, nil
}
