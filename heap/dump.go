package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/memheap"
)

// PrintDetailedMap writes a JSON description of the heap to the provided
// writer: summary statistics followed by every block in address order.
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var stats memheap.DetailedStatistics
	stats.Clear()
	h.addDetailedStatistics(&stats)

	objState := writer.Object()
	defer objState.End()

	objState.Name("TotalBytes").Int(len(h.data))
	objState.Name("UnusedBytes").Int(h.sumFreeSize)
	objState.Name("Allocations").Int(stats.AllocationCount)
	objState.Name("UnusedRanges").Int(stats.UnusedRangeCount)

	arrayState := objState.Name("Blocks").Array()
	defer arrayState.End()

	for ref := Ref(heapStart); int(ref)-WordSize < h.epilogue; ref = h.nextRef(ref) {
		obj := arrayState.Object()

		obj.Name("Offset").Int(int(ref))
		obj.Name("Size").Int(h.blockSize(ref))
		if h.header(ref).allocated() {
			obj.Name("Type").String("ALLOCATED")
		} else {
			obj.Name("Type").String("FREE")
		}

		obj.End()
	}
}
