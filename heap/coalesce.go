package heap

// coalesce merges a newly freed block with whichever physical neighbors are
// free and links the result into the free table. The block's own header and
// footer must already be marked free, its successor's prevAllocated bit must
// already be cleared, and the block must not be linked yet. Returns the
// payload offset of the resulting block.
func (h *Heap) coalesce(ref Ref) Ref {
	hdr := h.header(ref)
	size := hdr.size()

	next := h.nextRef(ref)
	prevFree := !hdr.prevAllocated()
	nextFree := !h.header(next).allocated()

	switch {
	case !prevFree && !nextFree:
		h.insertFreeBlock(ref)

	case !prevFree && nextFree:
		// Absorb the next block
		nextSize := h.blockSize(next)
		h.removeFreeBlock(next)

		size += nextSize
		w := packBlock(size, true, false)
		h.putHeader(ref, w)
		h.putFooter(ref, w)
		h.insertFreeBlock(ref)

		h.ops.CoalesceForward++

	case prevFree && !nextFree:
		ref = h.mergeIntoPrev(ref, size)

		h.ops.CoalesceBackward++

	default:
		// Both neighbors free: absorb the next block, then fold everything
		// into the previous one
		nextSize := h.blockSize(next)
		h.removeFreeBlock(next)

		ref = h.mergeIntoPrev(ref, size+nextSize)

		h.ops.CoalesceForward++
		h.ops.CoalesceBackward++
	}

	return ref
}

// mergeIntoPrev grows the free block physically before ref to cover ref's
// span as well. When the merged size stays in the predecessor's bucket the
// block grows in place and keeps its list position; only when the bucket
// changes is it unlinked and reinserted.
func (h *Heap) mergeIntoPrev(ref Ref, span int) Ref {
	prev := h.prevRef(ref)
	prevSize := h.blockSize(prev)
	merged := span + prevSize

	w := packBlock(merged, true, false)
	if classForSize(merged) == classForSize(prevSize) {
		h.putHeader(prev, w)
		h.putFooter(prev, w)
		h.sumFreeSize += merged - prevSize
		return prev
	}

	h.removeFreeBlock(prev)
	h.putHeader(prev, w)
	h.putFooter(prev, w)
	h.insertFreeBlock(prev)
	return prev
}
