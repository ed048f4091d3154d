package heap

import "golang.org/x/exp/slog"

// DebugLogAllAllocations calls logFunc for every live allocation in address
// order, passing the allocation's offset and usable size. Useful for
// tracking down leaks.
func (h *Heap) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int)) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for ref := Ref(heapStart); int(ref)-WordSize < h.epilogue; ref = h.nextRef(ref) {
		if h.header(ref).allocated() {
			logFunc(logger, int(ref), h.usableSize(ref))
		}
	}
}
