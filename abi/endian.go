package abi

// WordLen is the size of an ABI word in bytes. Every ABI-encoded integer
// occupies exactly one word regardless of its declared width.
const WordLen = 32

// DecodeWord extracts the least significant len(dst) bytes of a 32-byte
// big-endian word into dst, least significant byte first. word must hold
// at least WordLen bytes and dst must not be longer than WordLen.
func DecodeWord(dst, word []byte) {
	if len(dst) > WordLen {
		panic("abi: destination longer than a word")
	}
	for i := range dst {
		dst[i] = word[WordLen-1-i]
	}
}

// DecodeBytes reverses the big-endian src into the little-endian dst.
// src must hold at least len(dst) bytes.
func DecodeBytes(dst, src []byte) {
	reverseCopy(dst, src)
}

// EncodeWord writes the little-endian src into the tail of a 32-byte
// big-endian word, most significant byte first. The WordLen-len(src)
// leading bytes of word are left untouched. word must hold at least
// WordLen bytes and src must not be longer than WordLen.
func EncodeWord(word, src []byte) {
	if len(src) > WordLen {
		panic("abi: source longer than a word")
	}
	for i := range src {
		word[WordLen-1-i] = src[i]
	}
}

// EncodeBytes reverses the little-endian src into the big-endian dst.
// src must hold at least len(dst) bytes.
func EncodeBytes(dst, src []byte) {
	reverseCopy(dst, src)
}

func reverseCopy(dst, src []byte) {
	n := len(dst)
	for i := range dst {
		dst[i] = src[n-1-i]
	}
}
