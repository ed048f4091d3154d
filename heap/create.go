package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memheap/internal/utils"
	"golang.org/x/exp/slog"
)

// HeapCreateFlags indicate specific heap behaviors to activate or deactivate
type HeapCreateFlags int32

const (
	// HeapCreateExternallySynchronized ensures that this heap will not be synchronized
	// internally. The consumer must guarantee it is used from only one thread at a time
	// or is synchronized by some other mechanism, but performance may improve because
	// internal mutexes are not used.
	HeapCreateExternallySynchronized HeapCreateFlags = 1 << iota
)

func (f HeapCreateFlags) String() string {
	if f&HeapCreateExternallySynchronized != 0 {
		return "HeapCreateExternallySynchronized"
	}
	return ""
}

const (
	// DefaultChunkSize is the growth granularity used when CreateOptions does not
	// provide one. Each time the heap runs out of room it grows its backing memory
	// by at least this many bytes.
	DefaultChunkSize int = 256
)

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags HeapCreateFlags

	// ChunkSize is the minimum number of bytes the heap grows its backing memory by
	// when it runs out of room. It must be a multiple of 16 no smaller than the
	// minimum block size. When 0, DefaultChunkSize is used.
	ChunkSize int

	// Logger is the destination for leak reports and debug logging. When nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// New lays out an empty heap across the provided memory and grows it to its
// first usable size. The memory must be empty: the heap owns the full span
// and addresses it from offset 0.
func New(memory Memory, options CreateOptions) (*Heap, error) {
	if memory == nil {
		return nil, errors.New("a heap requires a backing Memory, but none was provided")
	}
	if memory.Size() != 0 {
		return nil, errors.Errorf("backing memory must be empty, but already holds %d bytes", memory.Size())
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinBlockSize || chunkSize%DoubleWord != 0 {
		return nil, errors.Errorf("chunk size must be a multiple of %d no smaller than %d, but was %d", DoubleWord, MinBlockSize, chunkSize)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Heap{
		memory:    memory,
		chunkSize: chunkSize,
		logger:    logger,
		mutex: utils.OptionalRWMutex{
			UseMutex: options.Flags&HeapCreateExternallySynchronized == 0,
		},
	}

	err := h.bootstrap()
	if err != nil {
		return nil, err
	}

	return h, nil
}

// bootstrap reserves the low end of the arena for the free-list roots, the
// pad word, and the sentinel blocks, then performs the initial growth.
func (h *Heap) bootstrap() error {
	_, err := h.memory.Grow(heapStart)
	if err != nil {
		return err
	}
	h.data = h.memory.Bytes()

	for class := 0; class < freeListCount; class++ {
		h.setRoot(class, NullRef)
	}
	h.putWord(rootTableSize, 0)

	prologue := packBlock(DoubleWord, true, true)
	h.putWord(prologueHeaderOffset, prologue)
	h.putWord(prologueHeaderOffset+WordSize, prologue)

	h.epilogue = heapStart - WordSize
	h.putWord(h.epilogue, packBlock(0, true, true))

	_, err = h.extendHeap(h.chunkSize)
	return err
}
