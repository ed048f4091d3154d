package heap

import "math/bits"

// classForSize maps a block size to its bucket in the free-list table: one
// past the position of the size's highest set bit, capped at the last
// bucket. Bucket k therefore holds blocks with sizes in [2^(k-1), 2^k), and
// the final bucket additionally catches everything larger.
func classForSize(size int) int {
	class := bits.Len(uint(size))
	if class >= freeListCount {
		return freeListCount - 1
	}
	return class
}
