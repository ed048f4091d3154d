package heap

// place turns the free block at ref into an allocation of size bytes. The
// block leaves the free table; when the leftover is worth keeping the block
// is split and the remainder becomes a new free block, otherwise the
// allocation keeps the whole block. The physical successor's view of its
// predecessor is updated either way.
func (h *Heap) place(ref Ref, size int) {
	next := h.nextRef(ref)
	nextSize := h.blockSize(next)

	oldSize := h.blockSize(ref)
	leftover := oldSize - size

	h.removeFreeBlock(ref)

	if leftover > splitThreshold {
		h.putHeader(next, packBlock(nextSize, false, true))
		h.putHeader(ref, packBlock(size, true, true))

		remainder := h.nextRef(ref)
		w := packBlock(leftover, true, false)
		h.putHeader(remainder, w)
		h.putFooter(remainder, w)
		h.insertFreeBlock(remainder)

		h.ops.SplitCount++
		return
	}

	h.putHeader(next, packBlock(nextSize, true, true))
	h.putHeader(ref, packBlock(oldSize, true, true))
}
