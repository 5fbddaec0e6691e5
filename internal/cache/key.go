package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Field is a named key part. Named parts are ordered by Name before hashing,
// so callers may pass them in any order.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for a named key part.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// DeriveKey builds "<namespace>:<sha256 hex>" from the canonical JSON of the
// positional parts followed by the named parts sorted by name. Equal logical
// requests always produce equal keys.
func DeriveKey(namespace string, positional []any, named ...Field) string {
	sorted := slices.Clone(named)
	slices.SortFunc(sorted, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })

	pairs := make([][2]any, len(sorted))
	for i, f := range sorted {
		pairs[i] = [2]any{f.Name, f.Value}
	}
	if positional == nil {
		positional = []any{}
	}

	// encoding/json sorts map keys, so nested maps are canonical too.
	payload, err := json.Marshal([]any{positional, pairs})
	if err != nil {
		// Unencodable parts (channels, funcs) still need a stable key.
		payload = []byte(fmt.Sprintf("%#v|%#v", positional, pairs))
	}
	sum := sha256.Sum256(payload)
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Digest returns the sha256 hex of s. Summary keys hash the normalised text
// first so the key stays short regardless of document size.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
