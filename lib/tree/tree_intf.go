package tree

import (
	"errors"
	"strconv"
)

type RBColor uint8

const (
	Black RBColor = iota
	Red
)

func (c RBColor) String() string {
	switch c {
	case Black:
		return "Black"
	case Red:
		return "Red"
	default:
	}
	return "RBColor(" + strconv.Itoa(int(c)) + ")"
}

type RBDirection int8

const (
	Left RBDirection = -1 + iota
	Root
	Right
)

func (d RBDirection) String() string {
	switch d {
	case Left:
		return "Left"
	case Root:
		return "Root"
	case Right:
		return "Right"
	default:
	}
	return "RBDirection(" + strconv.Itoa(int(d)) + ")"
}

var (
	ErrTreeMapNoComparator           = errors.New("[treemap] no comparator for the key type")
	ErrTreeMapArenaExhausted         = errors.New("[treemap] node arena exhausted")
	ErrTreeMapIteratorExhausted      = errors.New("[treemap] iterator exhausted")
	ErrTreeMapIteratorClosed         = errors.New("[treemap] iterator closed")
	ErrTreeMapConcurrentModification = errors.New("[treemap] tree mutated outside of the iterator")
	errTreeMapUnknownImplementation  = errors.New("[treemap] unknown treemap implementation")
	errTreeMapRedViolation           = errors.New("[treemap] rbtree red violation")
	errTreeMapBlackViolation         = errors.New("[treemap] rbtree black violation")
	errTreeMapRootColorViolation     = errors.New("[treemap] rbtree root is red")
	errTreeMapOrderViolation         = errors.New("[treemap] in-order keys are not strictly increasing")
	errTreeMapSizeViolation          = errors.New("[treemap] size mismatches the node count")
	errTreeMapLinkViolation          = errors.New("[treemap] child links back to a wrong parent")
)

// TreeMapEntry is a snapshot of a key-value pair.
// It never refers to the tree storage, so it stays valid
// after the pair is removed.
type TreeMapEntry[K any, V any] interface {
	Key() K
	Val() V
}

// TreeMap is an ordered key-value map backed by a red-black tree.
// Duplicate keys are rejected instead of overwritten.
//
// It is not safe for concurrent use. The caller has to serialize
// all the access (one writer, no reader during writes).
type TreeMap[K any, V any] interface {
	Len() int64
	IsEmpty() bool
	// Add inserts the key-value pair and reports whether a new node
	// was added. An existing key is left untouched.
	Add(key K, val V) (bool, error)
	Get(key K) (V, bool)
	Contains(key K) bool
	// DepthOf returns the number of edges from the root to the key,
	// or -1 if the key is absent.
	DepthOf(key K) int
	Remove(key K) (TreeMapEntry[K, V], bool)
	RemoveMin() (TreeMapEntry[K, V], bool)
	Min() (TreeMapEntry[K, V], bool)
	Max() (TreeMapEntry[K, V], bool)
	// Iterator returns a cursor positioned before the minimum key.
	Iterator() TreeMapIterator[K, V]
	// Foreach walks the pairs in order until action returns false.
	Foreach(action func(idx int64, color RBColor, key K, val V) bool)
	// Release drops all the nodes. The keys and values are not touched.
	Release()
	// Purge closes every key and value implementing io.Closer,
	// then releases the tree.
	Purge() error
}

// TreeMapIterator is a bidirectional cursor over a TreeMap.
// Any mutation of the tree not made by this iterator's own
// RemoveLastTraversed invalidates it.
type TreeMapIterator[K any, V any] interface {
	HasNext() bool
	Next() (TreeMapEntry[K, V], error)
	HasPrevious() bool
	Previous() (TreeMapEntry[K, V], error)
	// RemoveLastTraversed removes the pair returned by the last Next
	// or Previous call. It returns nil if there is no pending pair.
	RemoveLastTraversed() (TreeMapEntry[K, V], error)
	Close()
}
