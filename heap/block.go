package heap

import "encoding/binary"

// Block format constants. A block is a run of 8-byte words: a header word,
// the payload, and, for free blocks only, a footer word mirroring the header
// and a pair of free-list link words at the start of the payload area.
// Sizes are always multiples of DoubleWord, so the low bits of a header word
// are free to carry the block's state.
const (
	// WordSize is the size of a header, footer, or link word in bytes
	WordSize = 8
	// DoubleWord is the alignment unit: block sizes are multiples of this
	// and payloads start on a DoubleWord boundary
	DoubleWord = 16
	// MinBlockSize is the smallest legal block: a header, two link words,
	// and a footer
	MinBlockSize = 32

	// splitThreshold is the largest leftover that placing an allocation
	// keeps attached to it instead of splitting off as a new free block
	splitThreshold = 1 << 6
)

const (
	allocatedBit     blockWord = 0x1
	prevAllocatedBit blockWord = 0x2
	sizeMask                   = ^blockWord(0xF)
)

// Arena layout. The heap reserves the low end of the arena for the
// free-list root table, one pad word, the prologue block, and the epilogue
// header. The pad word keeps every payload offset on a DoubleWord boundary.
const (
	freeListCount = 16

	rootTableSize        = freeListCount * WordSize
	prologueHeaderOffset = rootTableSize + WordSize
	// heapStart is the payload offset of the first real block. The epilogue
	// header initially sits one word below it and moves up as the heap
	// grows.
	heapStart = prologueHeaderOffset + 3*WordSize
)

// blockWord is one packed header or footer word: the block size in the high
// bits, the previous block's allocated state in bit 1, and the block's own
// allocated state in bit 0.
type blockWord uint64

func packBlock(size int, prevAllocated, allocated bool) blockWord {
	w := blockWord(size)
	if prevAllocated {
		w |= prevAllocatedBit
	}
	if allocated {
		w |= allocatedBit
	}
	return w
}

func (w blockWord) size() int {
	return int(w & sizeMask)
}

func (w blockWord) allocated() bool {
	return w&allocatedBit != 0
}

func (w blockWord) prevAllocated() bool {
	return w&prevAllocatedBit != 0
}

func (h *Heap) word(offset int) blockWord {
	return blockWord(binary.LittleEndian.Uint64(h.data[offset:]))
}

func (h *Heap) putWord(offset int, w blockWord) {
	binary.LittleEndian.PutUint64(h.data[offset:], uint64(w))
}

func (h *Heap) header(ref Ref) blockWord {
	return h.word(int(ref) - WordSize)
}

func (h *Heap) putHeader(ref Ref, w blockWord) {
	h.putWord(int(ref)-WordSize, w)
}

// putFooter writes the footer word of a free block. The footer sits in the
// block's last word, located from the size packed into w.
func (h *Heap) putFooter(ref Ref, w blockWord) {
	h.putWord(int(ref)+w.size()-DoubleWord, w)
}

func (h *Heap) blockSize(ref Ref) int {
	return h.header(ref).size()
}

// nextRef returns the payload offset of the block physically after ref.
// Applied to the last real block it lands on the epilogue.
func (h *Heap) nextRef(ref Ref) Ref {
	return ref + Ref(h.blockSize(ref))
}

// prevRef returns the payload offset of the block physically before ref. It
// reads the previous block's footer, so it is only valid when that block is
// free.
func (h *Heap) prevRef(ref Ref) Ref {
	prevSize := h.word(int(ref) - DoubleWord).size()
	return ref - Ref(prevSize)
}
