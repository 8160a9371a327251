// Package queuename converts queue names between their canonical short form
// (used for storage keys and wire messages) and the expanded runtime form
// carrying the deployment's namespace prefix.
package queuename

import "strings"

// Codec normalizes and expands queue names for a single configured prefix.
// The zero value is a codec with no prefix, where both directions are the
// identity.
type Codec struct {
	prefix string
}

// NewCodec creates a codec for the given namespace prefix. A non-empty
// prefix without a trailing separator gets one appended, so both
// "production" and "production:" configure the same codec.
func NewCodec(prefix string) Codec {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return Codec{prefix: prefix}
}

// Prefix returns the configured prefix including its trailing separator,
// or "" when no prefix is configured.
func (c Codec) Prefix() string {
	return c.prefix
}

// Normalize strips the configured prefix, yielding the canonical short form
// used for SharedStore members and broadcast payloads. Names that do not
// carry the prefix are returned unchanged.
func (c Codec) Normalize(name string) string {
	if c.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, c.prefix)
}

// Expand applies the configured prefix, yielding the runtime form compared
// against live queue identifiers. Expand is idempotent: an already-expanded
// name is returned unchanged.
func (c Codec) Expand(name string) string {
	if c.prefix == "" || strings.HasPrefix(name, c.prefix) {
		return name
	}
	return c.prefix + name
}
