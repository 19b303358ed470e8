// Package internal holds cryptographic helpers shared by the root engine
// and the refresh store: opaque value generation and value-to-key hashing.
// Nothing here is part of the public API.
package internal
