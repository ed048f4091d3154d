package heap

import (
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/memheap"
)

// Validate walks the entire heap and verifies its structural invariants:
// sentinel integrity, legal block sizes, header/footer agreement, accurate
// predecessor state, no adjacent free blocks, bucket membership and
// ordering, and agreement between the block chain, the free table, and the
// heap's counters. Returns a descriptive error for the first inconsistency
// found.
func (h *Heap) Validate() error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.validate()
}

func (h *Heap) validate() error {
	prologue := h.word(prologueHeaderOffset)
	if prologue.size() != DoubleWord || !prologue.allocated() || !prologue.prevAllocated() {
		return errors.New("the heap prologue has been corrupted")
	}
	if h.word(prologueHeaderOffset+WordSize) != prologue {
		return errors.New("the heap prologue's footer does not match its header")
	}

	if h.epilogue != len(h.data)-WordSize {
		return errors.Errorf("the heap epilogue sits at offset %d, but the arena ends at offset %d", h.epilogue, len(h.data)-WordSize)
	}
	epilogue := h.word(h.epilogue)
	if epilogue.size() != 0 || !epilogue.allocated() {
		return errors.New("the heap epilogue has been corrupted")
	}

	freeBlocks := swiss.NewMap[uint64, int](uint32(h.freeBlockCount + 1))

	var freeCount, allocCount, calculatedSize, calculatedFreeSize int
	prevRef := NullRef
	prevAllocated := true

	ref := Ref(heapStart)
	for int(ref)-WordSize < h.epilogue {
		hdr := h.header(ref)
		size := hdr.size()

		if size < MinBlockSize || size%DoubleWord != 0 {
			return errors.Errorf("the block at offset %d has illegal size %d", int(ref), size)
		}
		if hdr.prevAllocated() != prevAllocated {
			return errors.Errorf("the block at offset %d disagrees with its predecessor's allocated state", int(ref))
		}

		if hdr.allocated() {
			if memheap.DebugMargin > 0 && !memheap.ValidateMagicValue(h.data, int(ref)+h.usableSize(ref)) {
				return errors.Errorf("memory corruption detected after the allocation at offset %d", int(ref))
			}

			allocCount++
		} else {
			if !prevAllocated {
				return errors.Errorf("the blocks at offsets %d and %d are adjacent but both free", int(prevRef), int(ref))
			}
			if h.word(int(ref)+size-DoubleWord) != hdr {
				return errors.Errorf("the block at offset %d has a footer that does not match its header", int(ref))
			}

			freeCount++
			calculatedFreeSize += size
			freeBlocks.Put(uint64(ref), size)
		}

		calculatedSize += size
		prevAllocated = hdr.allocated()
		prevRef = ref
		ref += Ref(size)
	}

	if int(ref)-WordSize != h.epilogue {
		return errors.Errorf("the last block ends at offset %d instead of at the heap epilogue", int(ref)-WordSize)
	}
	if epilogue.prevAllocated() != prevAllocated {
		return errors.New("the epilogue disagrees with the last block's allocated state")
	}
	if heapStart+calculatedSize != len(h.data) {
		return errors.Errorf("the heap arena is %d bytes, but the bookkeeping and blocks only added up to %d", len(h.data), heapStart+calculatedSize)
	}

	var listCount, listSize int
	for class := 0; class < freeListCount; class++ {
		root := h.root(class)

		if (h.freeBitmap&(1<<class) != 0) != (root != NullRef) {
			return errors.Errorf("the occupancy bitmap disagrees with bucket %d", class)
		}
		if root == NullRef {
			continue
		}
		if h.freePrev(root) != NullRef {
			return errors.Errorf("the block at offset %d is the head of bucket %d but has a previous block", int(root), class)
		}

		prev := NullRef
		for cur := root; cur != NullRef; cur = h.freeNext(cur) {
			size, ok := freeBlocks.Get(uint64(cur))
			if !ok {
				return errors.Errorf("the block at offset %d is in the free table but not free in the block chain, or is listed twice", int(cur))
			}
			freeBlocks.Delete(uint64(cur))

			if classForSize(size) != class {
				return errors.Errorf("the block at offset %d is in bucket %d but belongs in bucket %d", int(cur), class, classForSize(size))
			}
			if prev != NullRef {
				if cur <= prev {
					return errors.Errorf("bucket %d is not sorted by address at offset %d", class, int(cur))
				}
				if h.freePrev(cur) != prev {
					return errors.Errorf("the block at offset %d lists the block at offset %d as its next block, but the reverse reference is broken", int(prev), int(cur))
				}
			}

			listCount++
			listSize += size
			prev = cur
		}
	}

	if freeBlocks.Count() != 0 {
		return errors.Errorf("%d free blocks in the block chain are missing from the free table", freeBlocks.Count())
	}
	if listCount != freeCount {
		return errors.Errorf("the number of free blocks in the block chain and the number of blocks in the free table do not match! free table size: %d, block chain free blocks: %d", listCount, freeCount)
	}
	if h.freeBlockCount != freeCount {
		return errors.Errorf("the free block count of the heap is %d, but there were only %d free blocks", h.freeBlockCount, freeCount)
	}
	if h.sumFreeSize != calculatedFreeSize || listSize != calculatedFreeSize {
		return errors.Errorf("the free size of the heap is %d, but the free blocks only added up to %d", h.sumFreeSize, calculatedFreeSize)
	}
	if h.allocCount != allocCount {
		return errors.Errorf("the allocation count of the heap is %d, but the taken blocks only added up to %d", h.allocCount, allocCount)
	}

	return nil
}
