package memheap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/memheap"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 0, memheap.AlignUp(0, 16))
	require.Equal(t, 16, memheap.AlignUp(1, 16))
	require.Equal(t, 16, memheap.AlignUp(16, 16))
	require.Equal(t, 32, memheap.AlignUp(17, 16))
	require.Equal(t, 256, memheap.AlignUp(249, 16))
	require.Equal(t, 8, memheap.AlignUp(5, 8))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 0, memheap.AlignDown(0, 16))
	require.Equal(t, 0, memheap.AlignDown(15, 16))
	require.Equal(t, 16, memheap.AlignDown(16, 16))
	require.Equal(t, 16, memheap.AlignDown(31, 16))
	require.Equal(t, 240, memheap.AlignDown(249, 16))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memheap.CheckPow2(16, "alignment"))
	require.NoError(t, memheap.CheckPow2(1, "alignment"))

	err := memheap.CheckPow2(24, "alignment")
	require.ErrorIs(t, err, memheap.PowerOfTwoError)
	require.ErrorContains(t, err, "alignment is 24")
}
