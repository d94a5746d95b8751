// Package ir provides the constrained value types used for static activity
// arguments, their canonical encoding, and the structural hash primitives
// built on top of it.
//
// This package imports nothing internal. Every other internal package may
// import ir.
//
// Key design constraints:
//   - NO float values in arguments: floats are passed as decimal strings
//   - Canonical encoding sorts object keys by UTF-16 code units and NFC
//     normalizes strings, so equal arguments always hash equally
//   - Structural hashes are 64-bit xxhash digests with domain separation
package ir
