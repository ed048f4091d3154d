// Package arena provides the contiguous, monotonically growing byte buffer
// that backs a heap.
package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/memheap"
)

// Arena is a single span of bytes that can only grow. The backing slice may
// be reallocated by Grow, so positions within the arena should be kept as
// offsets rather than as sub-slices or pointers.
//
// Arena performs no synchronization of its own.
type Arena struct {
	data    []byte
	maxSize int
}

// New returns an empty Arena. maxSize is the largest number of bytes the
// arena will grow to, or 0 for no limit.
func New(maxSize int) *Arena {
	return &Arena{
		maxSize: maxSize,
	}
}

// Grow extends the arena by n zeroed bytes and returns the offset of the
// first new byte. When growing would exceed the arena's size limit, the
// arena is left unchanged and the returned error wraps
// memheap.OutOfMemoryError.
func (a *Arena) Grow(n int) (int, error) {
	if n <= 0 {
		return 0, errors.Errorf("grow size must be positive, but was %d", n)
	}

	base := len(a.data)
	if a.maxSize > 0 && base+n > a.maxSize {
		return 0, cerrors.Wrapf(memheap.OutOfMemoryError, "arena holds %d of at most %d bytes, cannot grow by %d", base, a.maxSize, n)
	}

	a.data = append(a.data, make([]byte, n)...)
	return base, nil
}

// Bytes returns the arena's current contents. The returned slice is only
// valid until the next call to Grow.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Size returns the current size of the arena in bytes.
func (a *Arena) Size() int {
	return len(a.data)
}
