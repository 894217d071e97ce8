package abi

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// U256 interprets a 32-byte big-endian word as an unsigned 256-bit
// integer. word must hold at least WordLen bytes.
func U256(word []byte) *uint256.Int {
	return new(uint256.Int).SetBytes32(word[:WordLen])
}

// PutU256 stores v into word as a 32-byte big-endian value. word must
// hold at least WordLen bytes.
func PutU256(word []byte, v *uint256.Int) {
	b := v.Bytes32()
	copy(word[:WordLen], b[:])
}

// LimbsToWord encodes little-endian 32-bit limbs as one big-endian word.
// word must hold exactly 4*len(limbs) bytes.
func LimbsToWord(word []byte, limbs []uint32) {
	if len(word) != 4*len(limbs) {
		panic("abi: word and limb lengths disagree")
	}
	for i, limb := range limbs {
		binary.BigEndian.PutUint32(word[len(word)-4*(i+1):], limb)
	}
}

// WordToLimbs decodes a big-endian word into little-endian 32-bit limbs.
// word must hold exactly 4*len(limbs) bytes.
func WordToLimbs(limbs []uint32, word []byte) {
	if len(word) != 4*len(limbs) {
		panic("abi: word and limb lengths disagree")
	}
	for i := range limbs {
		limbs[i] = binary.BigEndian.Uint32(word[len(word)-4*(i+1):])
	}
}
