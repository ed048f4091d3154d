// Package memheap contains common vocabulary shared by the heap allocator
// and its backing arena: statistics accumulators, alignment helpers, error
// sentinels, and the debug validation machinery.
//
// The allocator itself lives in the heap package, and the growable byte
// buffer it manages lives in the arena package.
package memheap
