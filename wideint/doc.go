// Package wideint implements the fixed-width integer arithmetic the
// generated contract code calls back into the host for: truncating
// multiplication over little-endian 32-bit limb arrays and 128-bit
// logical shifts.
//
// Results wrap modulo 2^(32*len): these are the semantics of machine
// integers, not of math/big. Limb slices store the least significant
// limb first, matching the in-memory layout of guest integers.
package wideint
