package wideint

// Uint128 is an unsigned 128-bit integer split into two 64-bit halves.
// The zero value is zero.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// Lsh returns v << n for 0 <= n <= 127.
func (v Uint128) Lsh(n uint) Uint128 {
	switch {
	case n == 0:
		return v
	case n&64 != 0:
		// The whole low half crosses into the high half.
		return Uint128{Hi: v.Lo << (n & 63)}
	default:
		return Uint128{
			Lo: v.Lo << n,
			Hi: v.Hi<<n | v.Lo>>(64-n),
		}
	}
}

// Rsh returns v >> n for 0 <= n <= 127. The shift is logical: vacated
// high bits fill with zero.
func (v Uint128) Rsh(n uint) Uint128 {
	switch {
	case n == 0:
		return v
	case n&64 != 0:
		return Uint128{Lo: v.Hi >> (n & 63)}
	default:
		return Uint128{
			Lo: v.Lo>>n | v.Hi<<(64-n),
			Hi: v.Hi >> n,
		}
	}
}
