package tree

import (
	"io"
	"reflect"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/benz9527/xcoll/lib/infra"
	"github.com/benz9527/xcoll/lib/xlog"
)

var _ TreeMap[int, struct{}] = (*treeMap[int, struct{}])(nil)

type treeMapEntry[K any, V any] struct {
	key K
	val V
}

func (e *treeMapEntry[K, V]) Key() K {
	return e.key
}

func (e *treeMapEntry[K, V]) Val() V {
	return e.val
}

type treeMap[K any, V any] struct {
	arena      *nodeArena[K, V]
	root       nodeIdx
	count      int64
	generation uint64 // Bumped by every structural mutation.
	cmp        infra.Comparator[K]
	isOrdered  func(key K) bool // Only set for the interface keys ordered by identity.
	isDesc     bool
	initCap    int
	logger     xlog.XLogger
	stats      *treeMapStats
	statsName  string
	statsOn    bool
	mp         metric.MeterProvider
}

func (tree *treeMap[K, V]) node(idx nodeIdx) *rbNode[K, V] {
	return &tree.arena.storage[idx]
}

func (tree *treeMap[K, V]) colorOf(idx nodeIdx) RBColor {
	if idx == nilLeaf {
		return Black
	}
	return tree.arena.storage[idx].color
}

func (tree *treeMap[K, V]) entryOf(idx nodeIdx) TreeMapEntry[K, V] {
	n := tree.node(idx)
	return &treeMapEntry[K, V]{key: n.key, val: n.val}
}

func (tree *treeMap[K, V]) minimum(idx nodeIdx) nodeIdx {
	if idx == nilLeaf {
		return nilLeaf
	}
	nodes := tree.arena.storage
	for ; nodes[idx].left != nilLeaf; idx = nodes[idx].left {
	}
	return idx
}

func (tree *treeMap[K, V]) maximum(idx nodeIdx) nodeIdx {
	if idx == nilLeaf {
		return nilLeaf
	}
	nodes := tree.arena.storage
	for ; nodes[idx].right != nilLeaf; idx = nodes[idx].right {
	}
	return idx
}

// The succ node of the current node is its next node in sorted order.
func (tree *treeMap[K, V]) succ(x nodeIdx) nodeIdx {
	if x == nilLeaf {
		return nilLeaf
	}
	nodes := tree.arena.storage
	if nodes[x].right != nilLeaf {
		return tree.minimum(nodes[x].right)
	}
	aux := nodes[x].parent
	// Backtrack to the first ancestor reached from its left subtree.
	for aux != nilLeaf && x == nodes[aux].right {
		x = aux
		aux = nodes[aux].parent
	}
	return aux
}

// The pred node of the current node is its previous node in sorted order.
func (tree *treeMap[K, V]) pred(x nodeIdx) nodeIdx {
	if x == nilLeaf {
		return nilLeaf
	}
	nodes := tree.arena.storage
	if nodes[x].left != nilLeaf {
		return tree.maximum(nodes[x].left)
	}
	aux := nodes[x].parent
	for aux != nilLeaf && x == nodes[aux].left {
		x = aux
		aux = nodes[aux].parent
	}
	return aux
}

func (tree *treeMap[K, V]) orderable(key K) bool {
	return tree.isOrdered == nil || tree.isOrdered(key)
}

func (tree *treeMap[K, V]) search(key K) nodeIdx {
	if !tree.orderable(key) {
		return nilLeaf
	}
	nodes := tree.arena.storage
	for x := tree.root; x != nilLeaf; {
		res := tree.cmp(key, nodes[x].key)
		if res == 0 {
			return x
		} else if res < 0 {
			x = nodes[x].left
		} else {
			x = nodes[x].right
		}
	}
	return nilLeaf
}

func (tree *treeMap[K, V]) Len() int64 {
	return tree.count
}

func (tree *treeMap[K, V]) IsEmpty() bool {
	return tree.count == 0
}

func (tree *treeMap[K, V]) Get(key K) (V, bool) {
	if x := tree.search(key); x != nilLeaf {
		return tree.node(x).val, true
	}
	var v V
	return v, false
}

func (tree *treeMap[K, V]) Contains(key K) bool {
	return tree.search(key) != nilLeaf
}

func (tree *treeMap[K, V]) DepthOf(key K) int {
	if !tree.orderable(key) {
		return -1
	}
	nodes := tree.arena.storage
	depth := 0
	for x := tree.root; x != nilLeaf; depth++ {
		res := tree.cmp(key, nodes[x].key)
		if res == 0 {
			return depth
		} else if res < 0 {
			x = nodes[x].left
		} else {
			x = nodes[x].right
		}
	}
	return -1
}

func (tree *treeMap[K, V]) Min() (TreeMapEntry[K, V], bool) {
	if tree.root == nilLeaf {
		return nil, false
	}
	return tree.entryOf(tree.minimum(tree.root)), true
}

func (tree *treeMap[K, V]) Max() (TreeMapEntry[K, V], bool) {
	if tree.root == nilLeaf {
		return nil, false
	}
	return tree.entryOf(tree.maximum(tree.root)), true
}

/*
<X> is a RED node.
[X] is a BLACK node (or NIL).
{X} is either a RED node or a BLACK node.

Left rotate X, Y is X's right child.

	    {P}                {P}
	    /                  /
	  {X}                {Y}
	  / \      ====>     / \
	{a} {Y}            {X} {c}
	    / \            / \
	  {b} {c}        {a} {b}
*/
func (tree *treeMap[K, V]) leftRotate(x nodeIdx) {
	nodes := tree.arena.storage
	y := nodes[x].right
	if x == nilLeaf || y == nilLeaf {
		panic( /* debug assertion */ "[treemap] left rotate without right child")
	}

	nodes[x].right = nodes[y].left
	if b := nodes[y].left; b != nilLeaf {
		nodes[b].parent = x
	}

	p := nodes[x].parent
	nodes[y].parent = p
	if p == nilLeaf {
		tree.root = y
	} else if x == nodes[p].left {
		nodes[p].left = y
	} else {
		nodes[p].right = y
	}

	nodes[y].left = x
	nodes[x].parent = y
	if p == nilLeaf {
		tree.stats.IncreaseRotationCount(Root)
	} else {
		tree.stats.IncreaseRotationCount(Left)
	}
}

/*
Right rotate X, Y is X's left child.

	      {P}            {P}
	      /              /
	    {X}            {Y}
	    / \    ====>   / \
	  {Y} {c}        {a} {X}
	  / \                / \
	{a} {b}            {b} {c}
*/
func (tree *treeMap[K, V]) rightRotate(x nodeIdx) {
	nodes := tree.arena.storage
	y := nodes[x].left
	if x == nilLeaf || y == nilLeaf {
		panic( /* debug assertion */ "[treemap] right rotate without left child")
	}

	nodes[x].left = nodes[y].right
	if b := nodes[y].right; b != nilLeaf {
		nodes[b].parent = x
	}

	p := nodes[x].parent
	nodes[y].parent = p
	if p == nilLeaf {
		tree.root = y
	} else if x == nodes[p].right {
		nodes[p].right = y
	} else {
		nodes[p].left = y
	}

	nodes[y].right = x
	nodes[x].parent = y
	if p == nilLeaf {
		tree.stats.IncreaseRotationCount(Root)
	} else {
		tree.stats.IncreaseRotationCount(Right)
	}
}

func (tree *treeMap[K, V]) Add(key K, val V) (bool, error) {
	if !tree.orderable(key) {
		return false, infra.WrapErrorStackWithMessage(
			ErrTreeMapNoComparator,
			"[treemap] add "+reflect.TypeOf(key).String(),
		)
	}
	y, x, res := nilLeaf, tree.root, 0
	for x != nilLeaf {
		y = x
		res = tree.cmp(key, tree.arena.storage[x].key)
		if /* equal */ res == 0 {
			tree.stats.IncreaseDuplicateCount()
			if tree.logger != nil {
				tree.logger.Debug("treemap duplicate key rejected", zap.Any("key", key))
			}
			return false, nil
		} else /* less */ if res < 0 {
			x = tree.arena.storage[x].left
		} else /* greater */ {
			x = tree.arena.storage[x].right
		}
	}

	z, err := tree.arena.malloc(key, val)
	if err != nil {
		return false, infra.WrapErrorStackWithMessage(err, "[treemap] add")
	}
	// Reload after malloc, the storage may be moved.
	nodes := tree.arena.storage
	nodes[z].parent = y
	if y == nilLeaf {
		tree.root = z
	} else if res < 0 {
		nodes[y].left = z
	} else {
		nodes[y].right = z
	}

	tree.count++
	tree.generation++
	tree.insertRebalance(z)
	tree.stats.RecordSize(1)
	return true, nil
}

/*
New node X is red by default.

i1: X is the root, or the parent P is black. Only repaint the root
into black.

i2: Both the parent P and the uncle U are red, so the grandpa G is black.
Repaint and continue from G, which may be red-violation with its parent.

	    [G]             <G>
	    / \             / \
	  <P> <U>  ====>  [P] [U]
	  /               /
	<X>             <X>

i3: The parent P is red but the uncle U is black, and X is the inner
grandchild. Rotate P to move X outside, then fall into i4.

	  [G]                 [G]
	  / \    rotate(P)    / \
	<P> [U]  ========>  <X> [U]
	  \                 /
	  <X>             <P>

i4: The parent P is red but the uncle U is black, and X is the outer
grandchild. Rotate G to the opposite direction and swap the colors of
P and G. The loop ends here.

	    [G]                 <P>               [P]
	    / \    rotate(G)    / \    repaint    / \
	  <P> [U]  ========>  <X> [G]  ======>  <X> <G>
	  /                         \                 \
	<X>                         [U]               [U]
*/
func (tree *treeMap[K, V]) insertRebalance(x nodeIdx) {
	nodes := tree.arena.storage
	for tree.colorOf(nodes[x].parent) == Red {
		tree.stats.IncreaseInsertRebalanceCount()
		p := nodes[x].parent
		g := nodes[p].parent // Red parent is never the root.
		if p == nodes[g].left {
			if u := nodes[g].right; /* i2 */ tree.colorOf(u) == Red {
				nodes[p].color = Black
				nodes[u].color = Black
				nodes[g].color = Red
				x = g
				continue
			}
			if /* i3 */ x == nodes[p].right {
				x = p
				tree.leftRotate(x)
				p = nodes[x].parent
			}
			/* i4 */
			nodes[p].color = Black
			nodes[g].color = Red
			tree.rightRotate(g)
		} else {
			if u := nodes[g].left; /* i2 */ tree.colorOf(u) == Red {
				nodes[p].color = Black
				nodes[u].color = Black
				nodes[g].color = Red
				x = g
				continue
			}
			if /* i3 */ x == nodes[p].left {
				x = p
				tree.rightRotate(x)
				p = nodes[x].parent
			}
			/* i4 */
			nodes[p].color = Black
			nodes[g].color = Red
			tree.leftRotate(g)
		}
	}
	/* i1 */
	nodes[tree.root].color = Black
}

// removeNode unlinks z from the tree. If z has two children, its
// successor's slot is spliced out instead and the successor's payload
// is moved into z's slot. It returns the freed slot.
func (tree *treeMap[K, V]) removeNode(z nodeIdx) nodeIdx {
	nodes := tree.arena.storage
	y := z
	if nodes[z].left != nilLeaf && nodes[z].right != nilLeaf {
		y = tree.minimum(nodes[z].right)
	}

	// y has one child at most.
	x := nodes[y].left
	if x == nilLeaf {
		x = nodes[y].right
	}
	xp := nodes[y].parent
	if x != nilLeaf {
		nodes[x].parent = xp
	}
	if xp == nilLeaf {
		tree.root = x
	} else if y == nodes[xp].left {
		nodes[xp].left = x
	} else {
		nodes[xp].right = x
	}

	if y != z {
		if tree.logger != nil {
			tree.logger.Debug("treemap splice the successor",
				zap.Any("removed", nodes[z].key),
				zap.Any("successor", nodes[y].key),
			)
		}
		nodes[z].key, nodes[z].val = nodes[y].key, nodes[y].val
	}

	if nodes[y].color == Black {
		tree.removeRebalance(x, xp)
	}
	tree.arena.release(y)
	tree.count--
	tree.generation++
	tree.stats.RecordSize(-1)
	return y
}

/*
X carries an extra black after its black parent was spliced out.
X may be the nil leaf, so its parent P is passed along.

r1: The sibling S is red. Rotate P and repaint, then S becomes black
and enter r2, r3 or r4.

	    [P]                   [S]
	    / \    rotate(P)      / \
	  [X] <S>  ========>    <P> [D]
	      / \               / \
	    [C] [D]           [X] [C]

r2: The sibling S and both its children are black. Repaint S into red
and move the extra black up to P.

	    {P}               {P}
	    / \               / \
	  [X] [S]  ====>    [X] <S>
	      / \               / \
	    [C] [D]           [C] [D]

r3: The sibling S is black, the close nephew C is red and the distant
nephew D is black. Rotate S, then enter r4.

	    {P}                 {P}
	    / \    rotate(S)    / \
	  [X] [S]  ========>  [X] [C]
	      / \                   \
	    <C> [D]                 <S>
	                              \
	                              [D]

r4: The sibling S is black and the distant nephew D is red. Rotate P,
S takes P's color and both P and D become black. The loop ends here.

	    {P}                   {S}
	    / \    rotate(P)      / \
	  [X] [S]  ========>    [P] [D]
	      / \               / \
	    {C} <D>           [X] {C}
*/
func (tree *treeMap[K, V]) removeRebalance(x, xp nodeIdx) {
	nodes := tree.arena.storage
	for x != tree.root && tree.colorOf(x) == Black {
		tree.stats.IncreaseRemoveRebalanceCount()
		if x == nodes[xp].left {
			s := nodes[xp].right
			if /* r1 */ tree.colorOf(s) == Red {
				nodes[s].color = Black
				nodes[xp].color = Red
				tree.leftRotate(xp)
				s = nodes[xp].right
			}
			if /* r2 */ tree.colorOf(nodes[s].left) == Black && tree.colorOf(nodes[s].right) == Black {
				nodes[s].color = Red
				x = xp
				xp = nodes[x].parent
				continue
			}
			if /* r3 */ tree.colorOf(nodes[s].right) == Black {
				nodes[nodes[s].left].color = Black
				nodes[s].color = Red
				tree.rightRotate(s)
				s = nodes[xp].right
			}
			/* r4 */
			nodes[s].color = nodes[xp].color
			nodes[xp].color = Black
			nodes[nodes[s].right].color = Black
			tree.leftRotate(xp)
		} else {
			s := nodes[xp].left
			if /* r1 */ tree.colorOf(s) == Red {
				nodes[s].color = Black
				nodes[xp].color = Red
				tree.rightRotate(xp)
				s = nodes[xp].left
			}
			if /* r2 */ tree.colorOf(nodes[s].left) == Black && tree.colorOf(nodes[s].right) == Black {
				nodes[s].color = Red
				x = xp
				xp = nodes[x].parent
				continue
			}
			if /* r3 */ tree.colorOf(nodes[s].left) == Black {
				nodes[nodes[s].right].color = Black
				nodes[s].color = Red
				tree.leftRotate(s)
				s = nodes[xp].left
			}
			/* r4 */
			nodes[s].color = nodes[xp].color
			nodes[xp].color = Black
			nodes[nodes[s].left].color = Black
			tree.rightRotate(xp)
		}
		x = tree.root
	}
	if x != nilLeaf {
		nodes[x].color = Black
	}
}

func (tree *treeMap[K, V]) Remove(key K) (TreeMapEntry[K, V], bool) {
	z := tree.search(key)
	if z == nilLeaf {
		return nil, false
	}
	e := tree.entryOf(z)
	tree.removeNode(z)
	return e, true
}

func (tree *treeMap[K, V]) RemoveMin() (TreeMapEntry[K, V], bool) {
	if tree.root == nilLeaf {
		return nil, false
	}
	z := tree.minimum(tree.root)
	e := tree.entryOf(z)
	tree.removeNode(z)
	return e, true
}

// Foreach walks in order, the idx is the in-order position.
func (tree *treeMap[K, V]) Foreach(action func(idx int64, color RBColor, key K, val V) bool) {
	if action == nil {
		return
	}
	var idx int64
	for x := tree.minimum(tree.root); x != nilLeaf; x = tree.succ(x) {
		n := tree.node(x)
		if !action(idx, n.color, n.key, n.val) {
			return
		}
		idx++
	}
}

func (tree *treeMap[K, V]) Iterator() TreeMapIterator[K, V] {
	return &treeMapIterator[K, V]{
		tree:       tree,
		next:       tree.minimum(tree.root),
		previous:   nilLeaf,
		last:       nilLeaf,
		generation: tree.generation,
	}
}

func (tree *treeMap[K, V]) Release() {
	if tree.count > 0 {
		tree.stats.RecordSize(-tree.count)
	}
	tree.arena.reset()
	tree.root = nilLeaf
	tree.count = 0
	tree.generation++
}

func (tree *treeMap[K, V]) Purge() error {
	var merr error
	for x := tree.minimum(tree.root); x != nilLeaf; x = tree.succ(x) {
		n := tree.node(x)
		merr = multierr.Append(merr, closeIfCloser(n.key))
		merr = multierr.Append(merr, closeIfCloser(n.val))
	}
	tree.Release()
	if merr != nil {
		return infra.WrapErrorStackWithMessage(merr, "[treemap] purge")
	}
	return nil
}

func closeIfCloser(item any) error {
	closer, ok := item.(io.Closer)
	if !ok || closer == nil {
		return nil
	}
	switch rv := reflect.ValueOf(closer); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	default:
	}
	return closer.Close()
}

type TreeMapOption[K any, V any] func(*treeMap[K, V])

// WithTreeMapComparator orders the keys by the cmp.
// A nil cmp is ignored.
func WithTreeMapComparator[K any, V any](cmp infra.Comparator[K]) TreeMapOption[K, V] {
	return func(tree *treeMap[K, V]) {
		if cmp != nil {
			tree.cmp = cmp
		}
	}
}

// WithTreeMapDesc reverses the order of the comparator.
func WithTreeMapDesc[K any, V any]() TreeMapOption[K, V] {
	return func(tree *treeMap[K, V]) {
		tree.isDesc = true
	}
}

func WithTreeMapInitCapacity[K any, V any](capacity int) TreeMapOption[K, V] {
	return func(tree *treeMap[K, V]) {
		tree.initCap = capacity
	}
}

func WithTreeMapLogger[K any, V any](logger xlog.XLogger) TreeMapOption[K, V] {
	return func(tree *treeMap[K, V]) {
		if logger != nil {
			tree.logger = logger.Named("treemap")
		}
	}
}

// WithTreeMapStats enables the otel metrics of the treemap.
// The global meter provider is used if mp is nil.
func WithTreeMapStats[K any, V any](name string, mp metric.MeterProvider) TreeMapOption[K, V] {
	return func(tree *treeMap[K, V]) {
		tree.statsOn = true
		tree.statsName = name
		tree.mp = mp
	}
}

// NewTreeMap creates a treemap ordered by the comparator option.
// Without that option, the keys have to be ordered by their identity,
// see infra.IdentityComparator. With an interface key type, Add rejects
// the keys whose dynamic kind has no identity order.
func NewTreeMap[K any, V any](opts ...TreeMapOption[K, V]) (TreeMap[K, V], error) {
	tree := &treeMap[K, V]{}
	for _, o := range opts {
		if o != nil {
			o(tree)
		}
	}

	if tree.cmp == nil {
		cmp, ok := infra.IdentityComparator[K]()
		if !ok {
			return nil, infra.WrapErrorStackWithMessage(
				ErrTreeMapNoComparator,
				reflect.TypeOf((*K)(nil)).Elem().String(),
			)
		}
		tree.cmp = cmp
		if reflect.TypeOf((*K)(nil)).Elem().Kind() == reflect.Interface {
			tree.isOrdered = infra.IsIdentityOrdered[K]
		}
	}
	if tree.isDesc {
		tree.cmp = infra.ReverseComparator(tree.cmp)
	}

	tree.arena = newNodeArena[K, V](tree.initCap)
	tree.root = nilLeaf
	if tree.statsOn {
		tree.stats = newTreeMapStats(tree.statsName, tree.mp)
	}
	if tree.logger != nil {
		tree.logger.Debug("treemap initialized",
			zap.String("keyType", reflect.TypeOf((*K)(nil)).Elem().String()),
			zap.Bool("desc", tree.isDesc),
			zap.Int("initCapacity", tree.initCap),
			zap.Bool("stats", tree.statsOn),
		)
	}
	return tree, nil
}

// NewOrderedTreeMap creates a treemap ordered by the natural order of
// the keys.
func NewOrderedTreeMap[K infra.OrderedKey, V any](opts ...TreeMapOption[K, V]) TreeMap[K, V] {
	opts = append([]TreeMapOption[K, V]{
		WithTreeMapComparator[K, V](infra.NaturalComparator[K]()),
	}, opts...)
	return lo.Must[TreeMap[K, V]](NewTreeMap[K, V](opts...))
}
