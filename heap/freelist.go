package heap

// The free-list table lives in the first freeListCount words of the arena.
// Each root holds the payload offset of the lowest-addressed free block in
// its size class, and blocks chain upward through link words kept in their
// payload area. Every list stays sorted by address.

func (h *Heap) root(class int) Ref {
	return Ref(h.word(class * WordSize))
}

func (h *Heap) setRoot(class int, ref Ref) {
	h.putWord(class*WordSize, blockWord(ref))
}

func (h *Heap) freeNext(ref Ref) Ref {
	return Ref(h.word(int(ref)))
}

func (h *Heap) setFreeNext(ref Ref, next Ref) {
	h.putWord(int(ref), blockWord(next))
}

func (h *Heap) freePrev(ref Ref) Ref {
	return Ref(h.word(int(ref) + WordSize))
}

func (h *Heap) setFreePrev(ref Ref, prev Ref) {
	h.putWord(int(ref)+WordSize, blockWord(prev))
}

// insertFreeBlock links a free block into the bucket for its size, keeping
// the bucket sorted by address.
func (h *Heap) insertFreeBlock(ref Ref) {
	if ref == NullRef {
		panic("cannot insert the null block into the free table")
	}

	hdr := h.header(ref)
	if hdr.allocated() {
		panic("provided block is not free")
	}

	size := hdr.size()
	class := classForSize(size)

	var prev Ref
	next := h.root(class)
	for next != NullRef && next < ref {
		prev = next
		next = h.freeNext(next)
	}

	h.setFreeNext(ref, next)
	h.setFreePrev(ref, prev)
	if next != NullRef {
		h.setFreePrev(next, ref)
	}
	if prev != NullRef {
		h.setFreeNext(prev, ref)
	} else {
		h.setRoot(class, ref)
	}

	h.freeBitmap |= 1 << class
	h.freeBlockCount++
	h.sumFreeSize += size
}

// removeFreeBlock unlinks a free block from its bucket and clears its link
// words.
func (h *Heap) removeFreeBlock(ref Ref) {
	if ref == NullRef {
		panic("cannot remove the null block from the free table")
	}

	hdr := h.header(ref)
	if hdr.allocated() {
		panic("provided block is not free")
	}

	size := hdr.size()
	class := classForSize(size)

	prev := h.freePrev(ref)
	next := h.freeNext(ref)
	switch {
	case prev == NullRef && next == NullRef:
		// Sole block in the bucket
		h.setRoot(class, NullRef)
		h.freeBitmap &^= 1 << class
	case next == NullRef:
		// Tail of the bucket
		h.setFreeNext(prev, NullRef)
	case prev == NullRef:
		// Head of the bucket
		h.setRoot(class, next)
		h.setFreePrev(next, NullRef)
	default:
		h.setFreeNext(prev, next)
		h.setFreePrev(next, prev)
	}

	h.setFreeNext(ref, NullRef)
	h.setFreePrev(ref, NullRef)

	h.freeBlockCount--
	h.sumFreeSize -= size
}

// findFit returns the lowest-addressed free block of at least size bytes in
// the smallest bucket that has one, or NullRef when no bucket does. The
// bitmap of non-empty buckets lets the search skip empty classes without
// touching the table.
func (h *Heap) findFit(size int) Ref {
	for class := classForSize(size); class < freeListCount; class++ {
		if h.freeBitmap&(1<<class) == 0 {
			continue
		}

		for ref := h.root(class); ref != NullRef; ref = h.freeNext(ref) {
			if h.blockSize(ref) >= size {
				return ref
			}
		}
	}

	return NullRef
}
