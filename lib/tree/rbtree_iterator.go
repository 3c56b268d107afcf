package tree

import (
	"go.uber.org/zap"

	"github.com/benz9527/xcoll/lib/infra"
)

// treeMapIterator keeps a cursor between two adjacent slots.
//
// After Next returned X, previous is X and next is X's succ.
// After Previous returned X, next is X and previous is X's pred.
// last is the slot returned by the last traversal and reset to the
// nil leaf by a removal.
type treeMapIterator[K any, V any] struct {
	tree       *treeMap[K, V]
	next       nodeIdx
	previous   nodeIdx
	last       nodeIdx
	generation uint64
	closed     bool
}

func (it *treeMapIterator[K, V]) check() error {
	if it.closed {
		return ErrTreeMapIteratorClosed
	}
	if it.generation != it.tree.generation {
		return infra.WrapErrorStack(ErrTreeMapConcurrentModification)
	}
	return nil
}

func (it *treeMapIterator[K, V]) HasNext() bool {
	return it.check() == nil && it.next != nilLeaf
}

func (it *treeMapIterator[K, V]) HasPrevious() bool {
	return it.check() == nil && it.previous != nilLeaf
}

func (it *treeMapIterator[K, V]) Next() (TreeMapEntry[K, V], error) {
	if err := it.check(); err != nil {
		return nil, err
	}
	if it.next == nilLeaf {
		return nil, ErrTreeMapIteratorExhausted
	}
	x := it.next
	it.previous, it.next, it.last = x, it.tree.succ(x), x
	return it.tree.entryOf(x), nil
}

func (it *treeMapIterator[K, V]) Previous() (TreeMapEntry[K, V], error) {
	if err := it.check(); err != nil {
		return nil, err
	}
	if it.previous == nilLeaf {
		return nil, ErrTreeMapIteratorExhausted
	}
	x := it.previous
	it.next, it.previous, it.last = x, it.tree.pred(x), x
	return it.tree.entryOf(x), nil
}

func (it *treeMapIterator[K, V]) RemoveLastTraversed() (TreeMapEntry[K, V], error) {
	if err := it.check(); err != nil {
		return nil, err
	}
	x := it.last
	if x == nilLeaf {
		return nil, nil
	}

	// Move the cursor away from x before the removal.
	if /* forward */ x == it.previous {
		it.previous = it.tree.pred(x)
	} else /* backward */ {
		it.next = it.tree.succ(x)
	}

	e := it.tree.entryOf(x)
	spliced := it.tree.removeNode(x)
	// x had two children, so its succ was spliced out and the succ's
	// payload now lives in x's slot. The succ is exactly it.next here.
	if spliced != x && it.next == spliced {
		it.next = x
	}
	it.last = nilLeaf
	it.generation = it.tree.generation

	if l := it.tree.logger; l != nil {
		l.Debug("treemap iterator removed", zap.Any("key", e.Key()))
	}
	return e, nil
}

func (it *treeMapIterator[K, V]) Close() {
	it.closed = true
	it.next, it.previous, it.last = nilLeaf, nilLeaf, nilLeaf
}
