// Package abi converts integers between their external ABI form and the
// little-endian layout contract code works with internally.
//
// ABI encoding stores every integer big-endian in a fixed 32-byte word,
// shorter types occupying the tail of the word. Internally the same
// integers live as little-endian byte strings of their natural width.
// The conversions here are pure byte reversals; no sign handling or
// padding happens in this package. EncodeWord in particular writes only
// the tail bytes of the word and leaves the leading bytes as they were,
// so callers zero- or sign-fill the word themselves beforehand.
package abi
