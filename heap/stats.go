package heap

import "github.com/vkngwrapper/arsenal/memheap"

// AddStatistics accumulates this heap's light statistics into stats without
// walking the block chain.
func (h *Heap) AddStatistics(stats *memheap.Statistics) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	stats.HeapCount++
	stats.HeapBytes += len(h.data)
	stats.AllocationCount += h.allocCount
	stats.AllocationBytes += len(h.data) - heapStart - h.sumFreeSize
}

// AddDetailedStatistics walks the heap's block chain and accumulates its
// detailed statistics into stats.
func (h *Heap) AddDetailedStatistics(stats *memheap.DetailedStatistics) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.addDetailedStatistics(stats)
}

func (h *Heap) addDetailedStatistics(stats *memheap.DetailedStatistics) {
	stats.HeapCount++
	stats.HeapBytes += len(h.data)

	for ref := Ref(heapStart); int(ref)-WordSize < h.epilogue; ref = h.nextRef(ref) {
		size := h.blockSize(ref)

		if h.header(ref).allocated() {
			stats.AddAllocation(size)
		} else {
			stats.AddUnusedRange(size)
		}
	}
}
