// Package token generates opaque artifact identifiers.
package token

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces artifact tokens. UUIDv7 keeps the token derived from
// creation time while staying unguessable; hex encoding keeps it strictly
// alphanumeric so a token survives the retrieval path's sanitization intact.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewToken returns a fresh 32-character lowercase hex token.
func (Generator) NewToken() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return hex.EncodeToString(id[:]), nil
}
