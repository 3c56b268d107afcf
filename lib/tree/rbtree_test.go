package tree

import (
	"bytes"
	"errors"
	randv2 "math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/benz9527/xcoll/lib/xlog"
)

type checkData[K any] struct {
	color RBColor
	key   K
}

func requireForeach[K any, V any](t *testing.T, m TreeMap[K, V], expected []checkData[K]) {
	var n int64
	m.Foreach(func(idx int64, color RBColor, key K, val V) bool {
		require.Less(t, idx, int64(len(expected)))
		require.Equal(t, expected[idx].color, color, "idx %d", idx)
		require.Equal(t, expected[idx].key, key, "idx %d", idx)
		n++
		return true
	})
	require.Equal(t, int64(len(expected)), n)
	require.Equal(t, int64(len(expected)), m.Len())
	require.NoError(t, ValidateTreeMap[K, V](m))
}

func keysOf[K any, V any](m TreeMap[K, V]) []K {
	keys := make([]K, 0, m.Len())
	m.Foreach(func(idx int64, color RBColor, key K, val V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func TestTreeMap_Lexicographic(t *testing.T) {
	m := NewOrderedTreeMap[string, int]()
	keys := []string{"axe", "asdf", "bar", "foo", "alter ego", "quine", "ra", "rust", "rendezvous", "xylophone"}
	for i, k := range keys {
		added, err := m.Add(k, i)
		require.NoError(t, err)
		require.True(t, added)
		require.NoError(t, ValidateTreeMap[string, int](m))
	}
	require.Equal(t, int64(10), m.Len())
	require.Equal(t, []string{
		"alter ego", "asdf", "axe", "bar", "foo", "quine", "ra", "rendezvous", "rust", "xylophone",
	}, keysOf[string, int](m))

	e, ok := m.Remove("bar")
	require.True(t, ok)
	require.Equal(t, "bar", e.Key())
	require.Equal(t, 2, e.Val())
	require.Equal(t, int64(9), m.Len())
	require.False(t, m.Contains("bar"))
	require.Equal(t, []string{
		"alter ego", "asdf", "axe", "foo", "quine", "ra", "rendezvous", "rust", "xylophone",
	}, keysOf[string, int](m))
	require.NoError(t, ValidateTreeMap[string, int](m))

	for i, k := range keys {
		v, ok := m.Get(k)
		if k == "bar" {
			require.False(t, ok)
			require.Zero(t, v)
			continue
		}
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestTreeMap_TwoNodes(t *testing.T) {
	m := NewOrderedTreeMap[string, int]()
	added, err := m.Add("a", 1)
	require.NoError(t, err)
	require.True(t, added)
	added, err = m.Add("b", 2)
	require.NoError(t, err)
	require.True(t, added)

	requireForeach[string, int](t, m, []checkData[string]{
		{Black, "a"}, {Red, "b"},
	})
	require.Equal(t, 0, m.DepthOf("a"))
	require.Equal(t, 1, m.DepthOf("b"))

	added, err = m.Add("a", 100)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, int64(2), m.Len())
	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestTreeMap_RotateAndRemove(t *testing.T) {
	m := NewOrderedTreeMap[uint64, uint64]()
	add := func(key uint64) {
		added, err := m.Add(key, key*10)
		require.NoError(t, err)
		require.True(t, added)
	}

	add(52)
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Black, 52}})
	add(47)
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Red, 47}, {Black, 52}})
	add(3)
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Red, 3}, {Black, 47}, {Red, 52}})
	add(35)
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Black, 3}, {Red, 35}, {Black, 47}, {Black, 52}})
	add(24)
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Red, 3}, {Black, 24}, {Red, 35}, {Black, 47}, {Black, 52}})

	// The successor takes the place of a node with two children.
	e, ok := m.Remove(24)
	require.True(t, ok)
	require.Equal(t, uint64(24), e.Key())
	require.Equal(t, uint64(240), e.Val())
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Red, 3}, {Black, 35}, {Black, 47}, {Black, 52}})

	e, ok = m.Remove(47)
	require.True(t, ok)
	require.Equal(t, uint64(47), e.Key())
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Black, 3}, {Black, 35}, {Black, 52}})
	require.Equal(t, 0, m.DepthOf(35))

	e, ok = m.Remove(35)
	require.True(t, ok)
	require.Equal(t, uint64(35), e.Key())
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{{Red, 3}, {Black, 52}})

	_, ok = m.Remove(35)
	require.False(t, ok)

	e, ok = m.Remove(3)
	require.True(t, ok)
	require.Equal(t, uint64(30), e.Val())
	e, ok = m.Remove(52)
	require.True(t, ok)
	require.Equal(t, uint64(52), e.Key())
	require.True(t, m.IsEmpty())
	requireForeach[uint64, uint64](t, m, []checkData[uint64]{})
}

func TestTreeMap_MinMax(t *testing.T) {
	m := NewOrderedTreeMap[int, string]()
	_, ok := m.Min()
	require.False(t, ok)
	_, ok = m.Max()
	require.False(t, ok)
	_, ok = m.RemoveMin()
	require.False(t, ok)
	require.Equal(t, -1, m.DepthOf(1))

	for _, k := range []int{5, 3, 9, 1, 7} {
		_, err := m.Add(k, strings.Repeat("x", k))
		require.NoError(t, err)
	}
	e, ok := m.Min()
	require.True(t, ok)
	require.Equal(t, 1, e.Key())
	e, ok = m.Max()
	require.True(t, ok)
	require.Equal(t, 9, e.Key())
	require.Equal(t, "xxxxxxxxx", e.Val())

	for _, expected := range []int{1, 3, 5, 7, 9} {
		e, ok = m.RemoveMin()
		require.True(t, ok)
		require.Equal(t, expected, e.Key())
		require.NoError(t, ValidateTreeMap[int, string](m))
	}
	require.True(t, m.IsEmpty())
}

func TestTreeMap_Desc(t *testing.T) {
	m := NewOrderedTreeMap[int, int](WithTreeMapDesc[int, int]())
	for i := 0; i < 32; i++ {
		_, err := m.Add(i, i)
		require.NoError(t, err)
	}
	keys := keysOf[int, int](m)
	require.Len(t, keys, 32)
	require.True(t, slices.IsSortedFunc(keys, func(a, b int) int { return b - a }))
	e, ok := m.Min()
	require.True(t, ok)
	require.Equal(t, 31, e.Key())
	require.NoError(t, ValidateTreeMap[int, int](m))
}

func TestTreeMap_Foreach_Stop(t *testing.T) {
	m := NewOrderedTreeMap[int, int]()
	for i := 0; i < 10; i++ {
		_, err := m.Add(i, i)
		require.NoError(t, err)
	}
	visited := 0
	m.Foreach(func(idx int64, color RBColor, key int, val int) bool {
		visited++
		return idx < 4
	})
	require.Equal(t, 5, visited)
	m.Foreach(nil)
}

func TestTreeMap_Random(t *testing.T) {
	rng := randv2.New(randv2.NewPCG(42, 1024))
	m := NewOrderedTreeMap[uint64, int](WithTreeMapInitCapacity[uint64, int](256))
	ref := map[uint64]int{}
	for i := 0; i < 2000; i++ {
		key := rng.Uint64N(1000)
		added, err := m.Add(key, i)
		require.NoError(t, err)
		_, exists := ref[key]
		require.Equal(t, !exists, added)
		if !exists {
			ref[key] = i
		}
		require.NoError(t, ValidateTreeMap[uint64, int](m))
	}
	require.Equal(t, int64(len(ref)), m.Len())
	require.NoError(t, ValidateTreeMap[uint64, int](m))

	expected := make([]uint64, 0, len(ref))
	for k := range ref {
		expected = append(expected, k)
	}
	slices.Sort(expected)
	require.Equal(t, expected, keysOf[uint64, int](m))

	rng.Shuffle(len(expected), func(i, j int) {
		expected[i], expected[j] = expected[j], expected[i]
	})
	for _, key := range expected {
		e, ok := m.Remove(key)
		require.True(t, ok)
		require.Equal(t, key, e.Key())
		require.Equal(t, ref[key], e.Val())
		require.False(t, m.Contains(key))
		require.NoError(t, ValidateTreeMap[uint64, int](m))
	}
	require.True(t, m.IsEmpty())
	require.NoError(t, ValidateTreeMap[uint64, int](m))
}

func TestTreeMap_ArenaReuse(t *testing.T) {
	m := NewOrderedTreeMap[int, int]()
	tree := m.(*treeMap[int, int])
	for i := 0; i < 64; i++ {
		_, err := m.Add(i, i)
		require.NoError(t, err)
	}
	slots := len(tree.arena.storage)
	require.Equal(t, 65, slots)

	for i := 0; i < 64; i += 2 {
		_, ok := m.Remove(i)
		require.True(t, ok)
	}
	require.Equal(t, 32, tree.arena.used())
	for i := 100; i < 132; i++ {
		_, err := m.Add(i, i)
		require.NoError(t, err)
	}
	require.Equal(t, slots, len(tree.arena.storage))
	require.Equal(t, Black, tree.arena.storage[nilLeaf].color)
	require.NoError(t, ValidateTreeMap[int, int](m))
}

func TestTreeMap_ArenaExhausted(t *testing.T) {
	m := NewOrderedTreeMap[int, int]()
	tree := m.(*treeMap[int, int])
	tree.arena.limit = 3
	for i := 1; i <= 3; i++ {
		added, err := m.Add(i, i)
		require.NoError(t, err)
		require.True(t, added)
	}
	added, err := m.Add(4, 4)
	require.ErrorIs(t, err, ErrTreeMapArenaExhausted)
	require.False(t, added)
	require.Equal(t, int64(3), m.Len())
	require.NoError(t, ValidateTreeMap[int, int](m))

	_, ok := m.Remove(2)
	require.True(t, ok)
	added, err = m.Add(4, 4)
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, []int{1, 3, 4}, keysOf[int, int](m))
}

func TestTreeMap_NoComparator(t *testing.T) {
	type compositeKey struct {
		a, b int
	}
	_, err := NewTreeMap[compositeKey, int]()
	require.ErrorIs(t, err, ErrTreeMapNoComparator)
	require.Contains(t, err.Error(), "compositeKey")

	m, err := NewTreeMap[compositeKey, int](WithTreeMapComparator[compositeKey, int](func(i, j compositeKey) int {
		if i.a != j.a {
			return i.a - j.a
		}
		return i.b - j.b
	}))
	require.NoError(t, err)
	for _, k := range []compositeKey{{2, 1}, {1, 2}, {1, 1}} {
		_, err = m.Add(k, k.a*10+k.b)
		require.NoError(t, err)
	}
	require.Equal(t, []compositeKey{{1, 1}, {1, 2}, {2, 1}}, keysOf[compositeKey, int](m))
}

func TestTreeMap_IdentityKeys(t *testing.T) {
	m, err := NewTreeMap[*int, string]()
	require.NoError(t, err)
	values := []int{1, 2, 3, 4}
	for i := range values {
		_, err = m.Add(&values[i], "v")
		require.NoError(t, err)
	}
	// The slice elements are ordered by their addresses.
	keys := keysOf[*int, string](m)
	require.Len(t, keys, 4)
	for i := range keys {
		require.Same(t, &values[i], keys[i])
	}
	require.True(t, m.Contains(&values[2]))
	other := 3
	require.False(t, m.Contains(&other))
}

func TestTreeMap_InterfaceIdentityKeys(t *testing.T) {
	type point struct {
		x, y int
	}
	m, err := NewTreeMap[any, int]()
	require.NoError(t, err)

	buf := make([]int, 2)
	for i, k := range []any{"b", 1, buf[1:], buf[:1], map[int]int{}, nil, &point{}} {
		added, err := m.Add(k, i)
		require.NoError(t, err)
		require.True(t, added)
		require.NoError(t, ValidateTreeMap[any, int](m))
	}
	added, err := m.Add(buf[:2], 100)
	require.NoError(t, err)
	require.False(t, added)
	v, ok := m.Get(buf[1:])
	require.True(t, ok)
	require.Equal(t, 2, v)
	e, ok := m.Min()
	require.True(t, ok)
	require.Nil(t, e.Key())

	// The struct values have no identity order.
	for _, k := range []any{point{1, 2}, point{3, 4}, [2]int{}} {
		added, err = m.Add(k, 0)
		require.ErrorIs(t, err, ErrTreeMapNoComparator)
		require.False(t, added)
		require.False(t, m.Contains(k))
		require.Equal(t, -1, m.DepthOf(k))
		_, ok = m.Remove(k)
		require.False(t, ok)
	}
	require.Contains(t, err.Error(), "[2]int")
	require.Equal(t, int64(7), m.Len())
	require.NoError(t, ValidateTreeMap[any, int](m))

	// A caller supplied comparator is trusted.
	m, err = NewTreeMap[any, int](WithTreeMapComparator[any, int](func(i, j any) int {
		return i.(point).x - j.(point).x
	}))
	require.NoError(t, err)
	for _, k := range []point{{3, 4}, {1, 2}} {
		added, err = m.Add(k, k.y)
		require.NoError(t, err)
		require.True(t, added)
	}
	require.Equal(t, []any{point{1, 2}, point{3, 4}}, keysOf[any, int](m))
}

type testCloser struct {
	closed bool
	err    error
}

func (c *testCloser) Close() error {
	c.closed = true
	return c.err
}

func TestTreeMap_ReleaseAndPurge(t *testing.T) {
	m := NewOrderedTreeMap[int, *testCloser]()
	closers := []*testCloser{{}, {err: errors.New("close 1")}, {}, {err: errors.New("close 3")}}
	for i, c := range closers {
		_, err := m.Add(i, c)
		require.NoError(t, err)
	}
	_, err := m.Add(len(closers), nil)
	require.NoError(t, err)

	it := m.Iterator()
	err = m.Purge()
	require.Error(t, err)
	require.Contains(t, err.Error(), "close 1")
	require.Contains(t, err.Error(), "close 3")
	for _, c := range closers {
		require.True(t, c.closed)
	}
	require.True(t, m.IsEmpty())
	require.False(t, it.HasNext())
	require.NoError(t, m.Purge())

	_, err = m.Add(1, &testCloser{})
	require.NoError(t, err)
	m.Release()
	require.True(t, m.IsEmpty())
	_, ok := m.Min()
	require.False(t, ok)
	require.NoError(t, ValidateTreeMap[int, *testCloser](m))
}

func TestValidateTreeMap(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := xlog.NewXLogger(
		xlog.WithXLoggerWriteSyncer(zapcore.AddSync(buf)),
		xlog.WithXLoggerLevel(xlog.LogLevelError),
	)
	build := func() *treeMap[int, int] {
		m := NewOrderedTreeMap[int, int](WithTreeMapLogger[int, int](logger))
		for _, k := range []int{1, 2, 3} {
			_, err := m.Add(k, k)
			require.NoError(t, err)
		}
		require.NoError(t, ValidateTreeMap[int, int](m))
		return m.(*treeMap[int, int])
	}

	tree := build()
	tree.node(tree.root).color = Red
	err := ValidateTreeMap[int, int](tree)
	require.ErrorIs(t, err, errTreeMapRootColorViolation)
	require.ErrorIs(t, err, errTreeMapRedViolation)
	require.ErrorIs(t, RedViolationValidate[int, int](tree), errTreeMapRedViolation)
	require.NoError(t, BlackViolationValidate[int, int](tree))

	tree = build()
	tree.node(tree.node(tree.root).left).color = Black
	err = ValidateTreeMap[int, int](tree)
	require.ErrorIs(t, err, errTreeMapBlackViolation)
	require.ErrorIs(t, BlackViolationValidate[int, int](tree), errTreeMapBlackViolation)
	require.NoError(t, RedViolationValidate[int, int](tree))

	tree = build()
	l, r := tree.node(tree.root).left, tree.node(tree.root).right
	tree.node(l).key, tree.node(r).key = tree.node(r).key, tree.node(l).key
	require.ErrorIs(t, ValidateTreeMap[int, int](tree), errTreeMapOrderViolation)

	tree = build()
	tree.count = 5
	require.ErrorIs(t, ValidateTreeMap[int, int](tree), errTreeMapSizeViolation)

	tree = build()
	tree.node(r).parent = l
	require.ErrorIs(t, ValidateTreeMap[int, int](tree), errTreeMapLinkViolation)

	require.Contains(t, buf.String(), "treemap validation failed")
	require.Contains(t, buf.String(), "errorStack")
	require.Contains(t, buf.String(), `"component":"treemap"`)
}

func TestTreeMap_DebugLog(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := xlog.NewXLogger(
		xlog.WithXLoggerWriteSyncer(zapcore.AddSync(buf)),
		xlog.WithXLoggerLevel(xlog.LogLevelDebug),
	)
	m := NewOrderedTreeMap[string, int](WithTreeMapLogger[string, int](logger))
	for i, k := range []string{"b", "a", "c"} {
		_, err := m.Add(k, i)
		require.NoError(t, err)
	}
	added, err := m.Add("a", 100)
	require.NoError(t, err)
	require.False(t, added)
	_, ok := m.Remove("b")
	require.True(t, ok)

	out := buf.String()
	require.Contains(t, out, "treemap initialized")
	require.Contains(t, out, "treemap duplicate key rejected")
	require.Contains(t, out, "treemap splice the successor")
	require.Contains(t, out, `"successor":"c"`)
}

func TestRBColor_String(t *testing.T) {
	require.Equal(t, "Black", Black.String())
	require.Equal(t, "Red", Red.String())
	require.Equal(t, "RBColor(7)", RBColor(7).String())
	require.Equal(t, "Left", Left.String())
	require.Equal(t, "Root", Root.String())
	require.Equal(t, "Right", Right.String())
}
