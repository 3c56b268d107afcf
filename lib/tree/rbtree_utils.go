package tree

import (
	"go.uber.org/multierr"

	"github.com/benz9527/xcoll/lib/infra"
)

// rbtree rule validation utilities.

// References:
// https://github1s.com/minghu6/rust-minghu6/blob/master/coll_st/src/bst/rb.rs

func asTreeMap[K any, V any](m TreeMap[K, V]) (*treeMap[K, V], error) {
	tree, ok := m.(*treeMap[K, V])
	if !ok || tree == nil {
		return nil, infra.WrapErrorStack(errTreeMapUnknownImplementation)
	}
	return tree, nil
}

// Inorder traversal to validate that no red node has a red child.
func RedViolationValidate[K any, V any](m TreeMap[K, V]) error {
	tree, err := asTreeMap[K, V](m)
	if err != nil {
		return err
	}
	return tree.redViolationValidate()
}

func (tree *treeMap[K, V]) redViolationValidate() error {
	nodes := tree.arena.storage
	stack := make([]nodeIdx, 0, 64)
	defer func() {
		clear(stack)
	}()

	for aux := tree.root; aux != nilLeaf; aux = nodes[aux].left {
		stack = append(stack, aux)
	}
	for size := len(stack); size > 0; size = len(stack) {
		aux := stack[size-1]
		if tree.colorOf(aux) == Red &&
			(tree.colorOf(nodes[aux].left) == Red || tree.colorOf(nodes[aux].right) == Red) {
			return errTreeMapRedViolation
		}
		stack = stack[:size-1]
		for aux = nodes[aux].right; aux != nilLeaf; aux = nodes[aux].left {
			stack = append(stack, aux)
		}
	}
	return nil
}

/*
<X> is a RED node.
[X] is a BLACK node (or NIL).

	        [13]
	        /  \
	     <8>    [15]
	     / \    /  \
	  [6] [11] [14] [17]
	  /              /
	<1>            <16>

Every path from a node down to the nil leaves passes the same
number of black nodes.
*/
func BlackViolationValidate[K any, V any](m TreeMap[K, V]) error {
	tree, err := asTreeMap[K, V](m)
	if err != nil {
		return err
	}
	if tree.blackHeight(tree.root) < 0 {
		return errTreeMapBlackViolation
	}
	return nil
}

// blackHeight returns -1 if the subtree of x is unbalanced.
func (tree *treeMap[K, V]) blackHeight(x nodeIdx) int {
	if x == nilLeaf {
		return 1
	}
	n := tree.node(x)
	lh := tree.blackHeight(n.left)
	if lh < 0 {
		return -1
	}
	rh := tree.blackHeight(n.right)
	if rh < 0 || lh != rh {
		return -1
	}
	if n.color == Black {
		return lh + 1
	}
	return lh
}

// The in-order keys have to be strictly increasing, each child has to
// link back to its parent and the node count has to match the size.
// Only the child links are followed, a broken parent link won't
// trap the traversal.
func (tree *treeMap[K, V]) structureValidate() error {
	var merr error
	nodes := tree.arena.storage
	if tree.root != nilLeaf && nodes[tree.root].parent != nilLeaf {
		merr = multierr.Append(merr, errTreeMapLinkViolation)
	}

	var count int64
	var orderErr, linkErr error
	prev := nilLeaf
	stack := make([]nodeIdx, 0, 64)
	defer func() {
		clear(stack)
	}()
	for aux := tree.root; aux != nilLeaf; aux = nodes[aux].left {
		stack = append(stack, aux)
	}
	for size := len(stack); size > 0; size = len(stack) {
		x := stack[size-1]
		stack = stack[:size-1]
		count++
		if prev != nilLeaf && orderErr == nil && tree.cmp(nodes[prev].key, nodes[x].key) >= 0 {
			orderErr = errTreeMapOrderViolation
		}
		if l := nodes[x].left; linkErr == nil && l != nilLeaf && nodes[l].parent != x {
			linkErr = errTreeMapLinkViolation
		}
		if r := nodes[x].right; linkErr == nil && r != nilLeaf && nodes[r].parent != x {
			linkErr = errTreeMapLinkViolation
		}
		prev = x
		for aux := nodes[x].right; aux != nilLeaf; aux = nodes[aux].left {
			stack = append(stack, aux)
		}
	}
	merr = multierr.Append(merr, orderErr)
	merr = multierr.Append(merr, linkErr)
	if count != tree.count || int(count) != tree.arena.used() {
		merr = multierr.Append(merr, errTreeMapSizeViolation)
	}
	return merr
}

// ValidateTreeMap checks all the red-black tree rules and
// the binary search tree rules. All the violations are returned
// together.
func ValidateTreeMap[K any, V any](m TreeMap[K, V]) error {
	tree, err := asTreeMap[K, V](m)
	if err != nil {
		return err
	}

	var merr error
	if tree.colorOf(tree.root) != Black {
		merr = multierr.Append(merr, errTreeMapRootColorViolation)
	}
	merr = multierr.Append(merr, tree.redViolationValidate())
	if tree.blackHeight(tree.root) < 0 {
		merr = multierr.Append(merr, errTreeMapBlackViolation)
	}
	merr = multierr.Append(merr, tree.structureValidate())
	if merr == nil {
		return nil
	}

	err = infra.WrapErrorStackWithMessage(merr, "[treemap] validate")
	if tree.logger != nil {
		tree.logger.ErrorStack(err, "treemap validation failed")
	}
	return err
}
