/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package heap

// Ref names an array object in the heap. It is an index, not a pointer:
// once issued by Add, a Ref stays valid for the life of the heap. On the
// operand stack a Ref travels as a plain int32.
type Ref int32

// Heap is an append-only table of array objects. Each object is a slice
// of n+1 int32 slots: slot 0 holds the element count n, slots 1..n hold
// the elements.
type Heap struct {
	objects [][]int32
}

func New() *Heap {
	return &Heap{}
}

// NewArray builds a zero-filled array object of the given length,
// with the length recorded in slot 0.
func NewArray(n int32) []int32 {
	buf := make([]int32, n+1)
	buf[0] = n
	return buf
}

// Add takes ownership of buf and returns the reference that names it.
// References count up from 0, one per call.
func (h *Heap) Add(buf []int32) Ref {
	h.objects = append(h.objects, buf)
	return Ref(len(h.objects) - 1)
}

// Get returns the buffer previously stored at ref. The caller may
// mutate it in place. A ref that was never issued by Add panics.
func (h *Heap) Get(ref Ref) []int32 {
	return h.objects[ref]
}

// Size returns the number of objects held.
func (h *Heap) Size() int {
	return len(h.objects)
}

// Free releases every buffer. All outstanding refs become invalid.
func (h *Heap) Free() {
	h.objects = nil
}
