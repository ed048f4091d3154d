package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/memheap"
	"github.com/vkngwrapper/arsenal/memheap/arena"
	"github.com/vkngwrapper/arsenal/memheap/heap"
)

func fillPayload(h *heap.Heap, ref heap.Ref, n int) {
	payload := h.Bytes(ref)
	for i := 0; i < n; i++ {
		payload[i] = byte(i%251 + 1)
	}
}

func requirePayload(t *testing.T, h *heap.Heap, ref heap.Ref, n int) {
	payload := h.Bytes(ref)
	for i := 0; i < n; i++ {
		require.Equal(t, byte(i%251+1), payload[i], "payload byte %d", i)
	}
}

func TestReallocNullRefAllocates(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref, err := h.Realloc(heap.NullRef, 100)
	require.NoError(t, err)
	require.NotEqual(t, heap.NullRef, ref)
	require.Equal(t, 1, h.AllocationCount())
	require.NoError(t, h.Validate())
}

func TestReallocToZeroFrees(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref, err := h.Alloc(100)
	require.NoError(t, err)

	out, err := h.Realloc(ref, 0)
	require.NoError(t, err)
	require.Equal(t, heap.NullRef, out)
	require.True(t, h.IsEmpty())
	require.NoError(t, h.Validate())
}

func TestReallocSameSizeReturnsSameRef(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref, err := h.Alloc(24)
	require.NoError(t, err)
	fillPayload(h, ref, 24)

	// 20 bytes round to the same 32-byte block
	out, err := h.Realloc(ref, 20)
	require.NoError(t, err)
	require.Equal(t, ref, out)
	requirePayload(t, h, out, 20)
	require.NoError(t, h.Validate())
}

func TestReallocGrowsInPlace(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref, err := h.Alloc(10)
	require.NoError(t, err)
	fillPayload(h, ref, 10)

	// The rest of the chunk is a single free block right after ref, so the
	// allocation absorbs it without moving
	out, err := h.Realloc(ref, 100)
	require.NoError(t, err)
	require.Equal(t, ref, out)
	require.Equal(t, 256, h.BlockSize(out))
	require.Equal(t, 0, h.SumFreeSize())
	requirePayload(t, h, out, 10)
	require.NoError(t, h.Validate())
}

func TestReallocGrowCopies(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref1, err := h.Alloc(24)
	require.NoError(t, err)
	ref2, err := h.Alloc(24)
	require.NoError(t, err)
	fillPayload(h, ref1, 24)

	// ref2 blocks in-place growth, so the payload moves to a new block and
	// the old one is freed
	out, err := h.Realloc(ref1, 200)
	require.NoError(t, err)
	require.NotEqual(t, ref1, out)
	require.GreaterOrEqual(t, h.UsableSize(out), 200)
	requirePayload(t, h, out, 24)
	require.Equal(t, 2, h.AllocationCount())
	require.NoError(t, h.Validate())
	_ = ref2
}

func TestReallocShrinkKeepsBlock(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref, err := h.Alloc(200)
	require.NoError(t, err)
	oldBlockSize := h.BlockSize(ref)
	fillPayload(h, ref, 200)

	out, err := h.Realloc(ref, 50)
	require.NoError(t, err)
	require.Equal(t, ref, out)
	require.Equal(t, oldBlockSize, h.BlockSize(out))
	requirePayload(t, h, out, 50)
	require.NoError(t, h.Validate())
}

func TestReallocPreservesContent(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	ref, err := h.Alloc(40)
	require.NoError(t, err)
	fillPayload(h, ref, 40)

	out, err := h.Realloc(ref, 400)
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.UsableSize(out), 400)
	requirePayload(t, h, out, 40)
	require.NoError(t, h.Validate())
}

func TestReallocGrowthFailure(t *testing.T) {
	h, err := heap.New(arena.New(416), heap.CreateOptions{})
	require.NoError(t, err)

	ref1, err := h.Alloc(24)
	require.NoError(t, err)
	ref2, err := h.Alloc(24)
	require.NoError(t, err)
	fillPayload(h, ref1, 24)

	// Growth needs a copy because ref2 is in the way, and the arena cannot
	// grow far enough for the copy's target
	out, err := h.Realloc(ref1, 4000)
	require.ErrorIs(t, err, memheap.OutOfMemoryError)
	require.Equal(t, heap.NullRef, out)

	// The original allocation is untouched
	requirePayload(t, h, ref1, 24)
	require.Equal(t, 2, h.AllocationCount())
	require.NoError(t, h.Validate())
	_ = ref2
}
