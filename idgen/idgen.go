// Package idgen provides the identifiers attached to resolution passes and
// HTTP requests. IDs are UUIDv7: time-sortable, so pass history orders
// naturally by ID.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// PassID identifies one resolution pass.
var PassID Generator = Prefixed("pass_", Default)

// RequestID identifies one inbound HTTP request.
var RequestID Generator = Prefixed("req_", Default)
