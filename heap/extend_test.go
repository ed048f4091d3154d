package heap_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/memheap"
	"github.com/vkngwrapper/arsenal/memheap/arena"
	"github.com/vkngwrapper/arsenal/memheap/heap"
	mock_heap "github.com/vkngwrapper/arsenal/memheap/heap/mocks"
	"go.uber.org/mock/gomock"
)

func TestNewRequiresMemory(t *testing.T) {
	_, err := heap.New(nil, heap.CreateOptions{})
	require.ErrorContains(t, err, "requires a backing Memory")
}

func TestNewRequiresEmptyMemory(t *testing.T) {
	memory := arena.New(0)
	_, err := memory.Grow(16)
	require.NoError(t, err)

	_, err = heap.New(memory, heap.CreateOptions{})
	require.ErrorContains(t, err, "must be empty")
}

func TestNewRejectsBadChunkSize(t *testing.T) {
	_, err := heap.New(arena.New(0), heap.CreateOptions{ChunkSize: 24})
	require.ErrorContains(t, err, "chunk size")

	_, err = heap.New(arena.New(0), heap.CreateOptions{ChunkSize: -256})
	require.ErrorContains(t, err, "chunk size")
}

func TestNewReportsInitialGrowFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	growErr := errors.New("backing store exhausted")

	memory := mock_heap.NewMockMemory(ctrl)
	memory.EXPECT().Size().Return(0)
	memory.EXPECT().Grow(gomock.Any()).Return(0, growErr).Times(1)

	_, err := heap.New(memory, heap.CreateOptions{})
	require.ErrorIs(t, err, growErr)
}

func TestNewReportsFirstExtensionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	growErr := errors.New("backing store exhausted")

	var data []byte
	memory := mock_heap.NewMockMemory(ctrl)
	memory.EXPECT().Size().DoAndReturn(func() int { return len(data) }).AnyTimes()
	memory.EXPECT().Bytes().DoAndReturn(func() []byte { return data }).AnyTimes()
	gomock.InOrder(
		memory.EXPECT().Grow(gomock.Any()).DoAndReturn(func(n int) (int, error) {
			base := len(data)
			data = append(data, make([]byte, n)...)
			return base, nil
		}),
		memory.EXPECT().Grow(gomock.Any()).Return(0, growErr),
	)

	_, err := heap.New(memory, heap.CreateOptions{})
	require.ErrorIs(t, err, growErr)
}

func TestAllocDoesNotRetryGrowth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	growErr := errors.New("backing store exhausted")

	var data []byte
	grow := func(n int) (int, error) {
		base := len(data)
		data = append(data, make([]byte, n)...)
		return base, nil
	}

	memory := mock_heap.NewMockMemory(ctrl)
	memory.EXPECT().Size().DoAndReturn(func() int { return len(data) }).AnyTimes()
	memory.EXPECT().Bytes().DoAndReturn(func() []byte { return data }).AnyTimes()
	gomock.InOrder(
		memory.EXPECT().Grow(gomock.Any()).DoAndReturn(grow).Times(2),
		memory.EXPECT().Grow(gomock.Any()).Return(0, growErr).Times(1),
	)

	h, err := heap.New(memory, heap.CreateOptions{})
	require.NoError(t, err)

	// Fits in the initial chunk without growing
	ref, err := h.Alloc(24)
	require.NoError(t, err)
	require.NotEqual(t, heap.NullRef, ref)

	// Too large for what is left; the single growth attempt fails and the
	// error comes straight back
	out, err := h.Alloc(100000)
	require.ErrorIs(t, err, growErr)
	require.Equal(t, heap.NullRef, out)
	require.NoError(t, h.Validate())
}

func TestAllocGrowthFailureLeavesHeapUnchanged(t *testing.T) {
	h, err := heap.New(arena.New(416), heap.CreateOptions{})
	require.NoError(t, err)

	out, err := h.Alloc(1000)
	require.ErrorIs(t, err, memheap.OutOfMemoryError)
	require.Equal(t, heap.NullRef, out)

	require.Equal(t, 416, h.Size())
	require.Equal(t, 256, h.SumFreeSize())
	require.NoError(t, h.Validate())

	// Requests that fit the existing free block still succeed
	ref, err := h.Alloc(240)
	require.NoError(t, err)
	require.NotEqual(t, heap.NullRef, ref)
	require.NoError(t, h.Validate())
}

func TestAllocGrowsByChunkSize(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, h.OpStats().GrowCalls)

	// Consume the whole initial chunk, then force growth with a small
	// request; the heap grows by the chunk size, not the request
	_, err = h.Alloc(240)
	require.NoError(t, err)

	ref, err := h.Alloc(24)
	require.NoError(t, err)
	require.NotEqual(t, heap.NullRef, ref)
	require.Equal(t, 2, h.OpStats().GrowCalls)
	require.Equal(t, 672, h.Size())
	require.Equal(t, 224, h.SumFreeSize())
	require.NoError(t, h.Validate())
}

func TestExtendCoalescesWithFreeTail(t *testing.T) {
	h, err := heap.New(arena.New(0), heap.CreateOptions{})
	require.NoError(t, err)

	// Leaves a 224-byte free tail after a 32-byte allocation
	ref1, err := h.Alloc(10)
	require.NoError(t, err)

	// No free block fits, so the heap grows; the new space merges with the
	// free tail and the allocation starts where the tail did
	ref2, err := h.Alloc(1000)
	require.NoError(t, err)
	require.Equal(t, int(ref1)+32, int(ref2))
	require.Equal(t, 2, h.OpStats().GrowCalls)
	require.Equal(t, 1424, h.Size())
	require.NoError(t, h.Validate())
}
