package tree

import (
	"math"
)

// nodeIdx addresses a slot of the node arena.
// Slot 0 is the reserved nil leaf. It is always black and never written.
type nodeIdx uint32

const (
	nilLeaf    nodeIdx = 0
	maxNodeIdx         = math.MaxUint32
)

type rbNode[K any, V any] struct {
	parent nodeIdx
	left   nodeIdx
	right  nodeIdx
	color  RBColor
	key    K
	val    V
}

// nodeArena owns every node of a tree. The links between nodes are
// indices instead of pointers, so the whole tree is a single slice
// and the freed slots are recycled by the next allocations.
type nodeArena[K any, V any] struct {
	storage []rbNode[K, V]
	free    []nodeIdx
	limit   uint64 // The max index of a slot.
}

func newNodeArena[K any, V any](capacity int) *nodeArena[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	a := &nodeArena[K, V]{
		storage: make([]rbNode[K, V], 1, capacity+1),
		limit:   maxNodeIdx,
	}
	a.storage[nilLeaf].color = Black
	return a
}

// malloc returns a red node without links.
// Taking the address of a slot across malloc calls is unsafe,
// the storage may be reallocated.
func (a *nodeArena[K, V]) malloc(key K, val V) (nodeIdx, error) {
	node := rbNode[K, V]{
		color: Red,
		key:   key,
		val:   val,
	}
	if l := len(a.free); l > 0 {
		idx := a.free[l-1]
		a.free = a.free[:l-1]
		a.storage[idx] = node
		return idx, nil
	}
	if uint64(len(a.storage)) > a.limit {
		return nilLeaf, ErrTreeMapArenaExhausted
	}
	a.storage = append(a.storage, node)
	return nodeIdx(len(a.storage) - 1), nil
}

func (a *nodeArena[K, V]) release(idx nodeIdx) {
	if idx == nilLeaf {
		panic( /* debug assertion */ "[treemap] release the nil leaf")
	}
	// Zero the slot so the GC won't retain the key and the value.
	a.storage[idx] = rbNode[K, V]{}
	a.free = append(a.free, idx)
}

func (a *nodeArena[K, V]) used() int {
	return len(a.storage) - 1 - len(a.free)
}

func (a *nodeArena[K, V]) reset() {
	clear(a.storage)
	a.storage = a.storage[:1]
	a.storage[nilLeaf].color = Black
	a.free = a.free[:0]
}
