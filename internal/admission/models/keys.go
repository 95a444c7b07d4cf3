package models

import (
	"fmt"
	"strings"
)

// WindowKey is a value object encapsulating rate window key construction.
// It centralizes key format and sanitization to prevent key collision attacks.
// Keys are stored as full strings; they are never reduced to a short hash.
type WindowKey struct {
	prefix   string
	identity string
}

// NewWindowKey creates a rate window key from a limiter prefix and a resolved
// client identity (e.g. "user:42", "ip:203.0.113.9").
func NewWindowKey(prefix, identity string) WindowKey {
	return WindowKey{
		prefix:   sanitizeKeySegment(prefix),
		identity: sanitizeKeySegment(identity),
	}
}

// String returns the formatted key for storage lookup.
func (k WindowKey) String() string {
	return fmt.Sprintf("rl:%s:%s", k.prefix, k.identity)
}

// sanitizeKeySegment escapes delimiter characters in key segments to prevent
// key collision attacks where user-controlled identifiers containing ':'
// could manipulate adjacent rate limit buckets.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// No two distinct inputs produce the same sanitized output.
func sanitizeKeySegment(s string) string {
	// Order matters: escape the escape character first
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
