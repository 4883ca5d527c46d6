// Package protocol owns the gateway wire contract and parsing primitives.
//
// Ownership boundary:
// - envelope shape and classification tags
// - plugin payload unwrapping
// - protocol-level error kinds
package protocol
