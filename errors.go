package memheap

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is the error returned when the memory backing a heap has reached its size
// limit and cannot grow any further
var OutOfMemoryError error = errors.New("backing memory cannot grow any further")
