// Package heap implements a segregated-fit allocator that manages a single
// contiguous, growable span of bytes.
//
// The span is carved into blocks whose sizes are multiples of 16 bytes.
// Free blocks are kept in a table of 16 size-class buckets, each an
// address-sorted doubly-linked list threaded through the blocks' own
// payload areas. Allocation searches the smallest plausible bucket upward
// and takes the first block that fits, splitting off the leftover when it
// is large enough to stand alone. Freed blocks merge immediately with any
// free physical neighbor.
//
// Everything the allocator knows lives inside the span itself: the bucket
// roots occupy its first words, and each block carries its bookkeeping in a
// header word. Positions are arena-relative offsets, so the span may be
// relocated by growth without invalidating anything but outstanding payload
// views.
package heap

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/memheap"
	"github.com/vkngwrapper/arsenal/memheap/internal/utils"
	"golang.org/x/exp/slog"
)

// Ref is the arena-relative offset of an allocation's payload. Refs remain
// valid as the heap grows.
type Ref int

// NullRef is the Ref equivalent of a nil pointer: no allocation ever has it
// as its offset.
const NullRef Ref = 0

// Memory is a contiguous span of bytes that can only grow, addressed by
// offset from its start. A heap takes sole ownership of the Memory it is
// created on.
type Memory interface {
	// Grow extends the span by n zeroed bytes and returns the offset of the
	// first new byte, or an error leaving the span unchanged
	Grow(n int) (int, error)
	// Bytes returns the span's current contents. The returned slice is only
	// valid until the next call to Grow
	Bytes() []byte
	// Size returns the current size of the span in bytes
	Size() int
}

// OpStats counts the internal operations a heap has performed over its
// lifetime.
type OpStats struct {
	// GrowCalls is the number of times the backing memory grew
	GrowCalls int
	// SplitCount is the number of free blocks split during placement
	SplitCount int
	// CoalesceForward counts merges that absorbed the block after a freed one
	CoalesceForward int
	// CoalesceBackward counts merges that folded a freed block into its predecessor
	CoalesceBackward int
}

// Heap is a segregated-fit allocator over one Memory. Multiple heaps can
// coexist, each owning its own span.
//
// Unless created with HeapCreateExternallySynchronized, all public methods
// are safe for concurrent use.
type Heap struct {
	memory Memory
	// data caches memory.Bytes() and is refreshed after every growth
	data []byte

	epilogue  int
	chunkSize int
	// freeBitmap has bit k set while bucket k is non-empty
	freeBitmap uint16

	allocCount     int
	freeBlockCount int
	sumFreeSize    int
	ops            OpStats

	logger *slog.Logger
	mutex  utils.OptionalRWMutex
}

// roundBlockSize converts a payload request into a block size: the payload
// plus its header word, aligned up to a DoubleWord multiple and never below
// the minimum block.
func roundBlockSize(size int) int {
	need := memheap.AlignUp(size+WordSize+memheap.DebugMargin, DoubleWord)
	if need < MinBlockSize {
		return MinBlockSize
	}
	return need
}

// Alloc reserves at least size bytes and returns the offset of the new
// payload. Requests that are not positive return NullRef and touch nothing.
// When no free block fits, the heap grows; a growth failure is returned
// as-is and the heap is left as it was.
func (h *Heap) Alloc(size int) (Ref, error) {
	if size <= 0 {
		return NullRef, nil
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.alloc(size)
}

func (h *Heap) alloc(size int) (Ref, error) {
	need := roundBlockSize(size)

	ref := h.findFit(need)
	if ref == NullRef {
		extendBy := need
		if extendBy < h.chunkSize {
			extendBy = h.chunkSize
		}

		var err error
		ref, err = h.extendHeap(extendBy)
		if err != nil {
			return NullRef, err
		}
	}

	h.place(ref, need)
	h.allocCount++

	if memheap.DebugMargin > 0 {
		memheap.WriteMagicValue(h.data, int(ref)+h.usableSize(ref))
		h.fillPayload(ref, memheap.CreatedFillPattern)
	}

	return ref, nil
}

// Free releases the allocation at ref and immediately merges it with any
// free neighbor. Freeing NullRef is a no-op. ref must be the live result of
// a previous Alloc or Realloc on this heap; passing anything else corrupts
// the heap.
func (h *Heap) Free(ref Ref) {
	if ref == NullRef {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.free(ref)
}

func (h *Heap) free(ref Ref) {
	if memheap.DebugMargin > 0 {
		if !memheap.ValidateMagicValue(h.data, int(ref)+h.usableSize(ref)) {
			panic(fmt.Sprintf("memory corruption detected after the allocation at offset %d", int(ref)))
		}
		h.fillPayload(ref, memheap.DestroyedFillPattern)
	}

	hdr := h.header(ref)
	size := hdr.size()

	next := h.nextRef(ref)
	nextHdr := h.header(next)

	w := packBlock(size, hdr.prevAllocated(), false)
	h.putHeader(ref, w)
	h.putFooter(ref, w)

	nw := packBlock(nextHdr.size(), false, nextHdr.allocated())
	h.putHeader(next, nw)
	if !nextHdr.allocated() {
		h.putFooter(next, nw)
	}

	h.coalesce(ref)
	h.allocCount--
}

// Realloc resizes the allocation at ref to size bytes and returns its
// possibly new offset. A NullRef ref behaves like Alloc and a non-positive
// size behaves like Free. Growth first tries to absorb a free successor
// without moving the payload, then falls back to allocate-copy-free.
// Shrinking keeps the block whole and returns the same ref.
func (h *Heap) Realloc(ref Ref, size int) (Ref, error) {
	if ref == NullRef {
		return h.Alloc(size)
	}
	if size <= 0 {
		h.Free(ref)
		return NullRef, nil
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.realloc(ref, size)
}

func (h *Heap) realloc(ref Ref, size int) (Ref, error) {
	oldSize := h.blockSize(ref)
	need := roundBlockSize(size)

	if need == oldSize {
		return ref, nil
	}

	if need > oldSize {
		next := h.nextRef(ref)
		nextHdr := h.header(next)

		if !nextHdr.allocated() && oldSize+nextHdr.size() >= need {
			// The free successor covers the growth, absorb it whole
			h.removeFreeBlock(next)

			merged := oldSize + nextHdr.size()
			h.putHeader(ref, packBlock(merged, h.header(ref).prevAllocated(), true))

			after := h.nextRef(ref)
			h.putHeader(after, packBlock(h.blockSize(after), true, true))

			if memheap.DebugMargin > 0 {
				memheap.WriteMagicValue(h.data, int(ref)+h.usableSize(ref))
			}

			return ref, nil
		}

		newRef, err := h.alloc(size)
		if err != nil {
			return NullRef, err
		}

		n := h.usableSize(ref)
		if m := h.usableSize(newRef); m < n {
			n = m
		}
		copy(h.data[int(newRef):int(newRef)+n], h.data[int(ref):int(ref)+n])

		h.free(ref)
		return newRef, nil
	}

	// Shrinking keeps the block whole
	return ref, nil
}

// Bytes returns the payload of the allocation at ref as a mutable slice of
// its usable size. The slice is only valid until the heap next grows.
func (h *Heap) Bytes(ref Ref) []byte {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.data[int(ref) : int(ref)+h.usableSize(ref)]
}

// BlockSize returns the full reserved span of the allocation at ref,
// including its header word.
func (h *Heap) BlockSize(ref Ref) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.blockSize(ref)
}

// UsableSize returns the number of payload bytes the allocation at ref may
// use. It is at least the size that was requested.
func (h *Heap) UsableSize(ref Ref) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.usableSize(ref)
}

func (h *Heap) usableSize(ref Ref) int {
	return h.blockSize(ref) - WordSize - memheap.DebugMargin
}

func (h *Heap) fillPayload(ref Ref, pattern uint8) {
	payload := h.data[int(ref) : int(ref)+h.usableSize(ref)]
	for i := 0; i < len(payload); i++ {
		payload[i] = pattern
	}
}

// Size returns the heap's total arena size in bytes, bookkeeping included.
func (h *Heap) Size() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.data)
}

// SumFreeSize returns the combined size of all free blocks.
func (h *Heap) SumFreeSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.sumFreeSize
}

// AllocationCount returns the number of live allocations.
func (h *Heap) AllocationCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.allocCount
}

// IsEmpty returns true when the heap has no live allocations.
func (h *Heap) IsEmpty() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.allocCount == 0
}

// OpStats returns a snapshot of the heap's lifetime operation counters.
func (h *Heap) OpStats() OpStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.ops
}

// VisitAllocations calls visit for every live allocation in address order
// with its offset and usable size, until visit returns false.
func (h *Heap) VisitAllocations(visit func(ref Ref, size int) bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for ref := Ref(heapStart); int(ref)-WordSize < h.epilogue; ref = h.nextRef(ref) {
		if !h.header(ref).allocated() {
			continue
		}
		if !visit(ref, h.usableSize(ref)) {
			return
		}
	}
}

// Clear drops every allocation at once, returning the heap to a single free
// block spanning the whole arena. The arena keeps its current size.
func (h *Heap) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.freeBitmap = 0
	h.allocCount = 0
	h.freeBlockCount = 0
	h.sumFreeSize = 0

	for class := 0; class < freeListCount; class++ {
		h.setRoot(class, NullRef)
	}
	h.putWord(rootTableSize, 0)

	prologue := packBlock(DoubleWord, true, true)
	h.putWord(prologueHeaderOffset, prologue)
	h.putWord(prologueHeaderOffset+WordSize, prologue)

	h.epilogue = len(h.data) - WordSize
	h.putWord(h.epilogue, packBlock(0, false, true))

	ref := Ref(heapStart)
	w := packBlock(h.epilogue-heapStart+WordSize, true, false)
	h.putHeader(ref, w)
	h.putFooter(ref, w)
	h.insertFreeBlock(ref)
}

// Destroy verifies that the heap is empty and releases its hold on the
// backing memory. When allocations remain, each is logged and an error is
// returned with the heap left intact.
func (h *Heap) Destroy() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.allocCount > 0 {
		for ref := Ref(heapStart); int(ref)-WordSize < h.epilogue; ref = h.nextRef(ref) {
			if !h.header(ref).allocated() {
				continue
			}

			h.logger.LogAttrs(context.Background(), slog.LevelError,
				"[UNRELEASED MEMORY] unfreed allocation",
				slog.Int("offset", int(ref)),
				slog.Int("size", h.usableSize(ref)),
			)
		}

		return errors.Errorf("%d allocations were not freed before the heap was destroyed", h.allocCount)
	}

	h.memory = nil
	h.data = nil
	return nil
}
