package heap

import (
	"github.com/vkngwrapper/arsenal/memheap"
)

// extendHeap grows the backing memory by at least sizeBytes, rounded up to a
// DoubleWord multiple, and turns the new span into a free block. The new
// block inherits the old epilogue's record of its predecessor's state and a
// fresh epilogue is written at the new high end. When the old tail block was
// free the new span is merged into it. Returns the resulting free block, or
// the growth error with the heap unchanged.
func (h *Heap) extendHeap(sizeBytes int) (Ref, error) {
	size := memheap.AlignUp(sizeBytes, DoubleWord)

	oldEpilogue := h.epilogue
	endAllocated := h.word(oldEpilogue).prevAllocated()

	base, err := h.memory.Grow(size)
	if err != nil {
		return NullRef, err
	}
	h.data = h.memory.Bytes()
	if base != oldEpilogue+WordSize {
		panic("backing memory grew out of step with the heap")
	}

	// The new block's header lands on the old epilogue
	ref := Ref(oldEpilogue + WordSize)
	w := packBlock(size, endAllocated, false)
	h.putHeader(ref, w)
	h.putFooter(ref, w)

	h.epilogue = oldEpilogue + size
	h.putWord(h.epilogue, packBlock(0, false, true))

	h.ops.GrowCalls++

	if endAllocated {
		h.insertFreeBlock(ref)
		return ref, nil
	}
	return h.coalesce(ref), nil
}
