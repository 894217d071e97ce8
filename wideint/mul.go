package wideint

import "math/bits"

// Mul computes the product of left and right truncated to len(out) limbs.
// All slices are little-endian limb arrays and left and right must be at
// least as long as out; extra limbs are ignored.
//
// The product is accumulated one output limb at a time. For output limb l
// every pair left[i]*right[r] with i+r == l is added into a 64-bit
// accumulator; overflow out of the accumulator is caught and re-injected
// one limb up through a separate carry word, so no partial sum is lost
// before the final truncation.
func Mul(out, left, right []uint32) {
	n := len(out)

	// Zero limbs at the top contribute nothing. Trimming them first keeps
	// the diagonal window tight and the inner loop short for small values
	// stored in wide arrays.
	leftLen := n
	for leftLen > 0 && left[leftLen-1] == 0 {
		leftLen--
	}
	rightLen := n
	for rightLen > 0 && right[rightLen-1] == 0 {
		rightLen--
	}

	var acc, carry uint64
	rightStart, rightEnd, leftStart := 0, 0, 0

	for l := 0; l < n; l++ {
		// Slide the window so it covers exactly the pairs with i+r == l
		// that fall inside the trimmed operands.
		if l >= leftLen {
			rightStart++
		}
		if l >= rightLen {
			leftStart++
		}
		if rightEnd < rightLen {
			rightEnd++
		}

		i := 0
		for r := rightEnd - 1; r >= rightStart; r-- {
			m := uint64(left[leftStart+i]) * uint64(right[r])
			i++
			var c uint64
			acc, c = bits.Add64(acc, m, 0)
			if c != 0 {
				carry += 1 << 32
			}
		}

		out[l] = uint32(acc)
		acc = acc>>32 | carry
		carry = 0
	}
}
