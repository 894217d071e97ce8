package abi

const hextable = "0123456789abcdef"

// PutLEHex writes the little-endian integer v into dst as lowercase
// big-endian hex, most significant digit first. dst must hold at least
// 2*len(v) bytes. Storage backends key their slots with this form.
func PutLEHex(dst, v []byte) {
	if len(dst) < 2*len(v) {
		panic("abi: hex destination too short")
	}
	i := 0
	for j := len(v) - 1; j >= 0; j-- {
		dst[i] = hextable[v[j]>>4]
		dst[i+1] = hextable[v[j]&0x0F]
		i += 2
	}
}

// LEHex returns the little-endian integer v as a lowercase big-endian
// hex string.
func LEHex(v []byte) string {
	dst := make([]byte, 2*len(v))
	PutLEHex(dst, v)
	return string(dst)
}
