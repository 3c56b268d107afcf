package infra

import (
	"cmp"
	"reflect"
)

type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type Integer interface {
	Signed | Unsigned
}

type Float interface {
	~float32 | ~float64
}

// OrderedKey
// byte => ~uint8
type OrderedKey interface {
	Integer | Float | ~string
}

// Comparator is a three-way order over keys.
// Assume i is the new key.
//  1. i == j, return 0
//  2. i > j, return a positive number, turn to right part.
//  3. i < j, return a negative number, turn to left part.
//
// It must be a strict total order and stay consistent for
// the whole lifetime of the container that holds it.
type Comparator[K any] func(i, j K) int

// NaturalComparator orders the keys by the built-in operators.
func NaturalComparator[K OrderedKey]() Comparator[K] {
	return cmp.Compare[K]
}

// ReverseComparator flips the order of the given comparator.
func ReverseComparator[K any](c Comparator[K]) Comparator[K] {
	if c == nil {
		return nil
	}
	return func(i, j K) int {
		return c(j, i)
	}
}

// IdentityComparator derives a fallback order for the key type K
// when the caller does not supply one.
// Pointer-like keys (pointer, unsafe pointer, chan, slice, map, func)
// are ordered by memory address. Booleans, numbers and strings are
// ordered by value. Interface keys are dispatched on their dynamic
// kind, and a nil interface sorts first.
// It returns false if the kind of K has no identity order.
// For an interface K, the dynamic kind of each key has to be checked
// by IsIdentityOrdered before comparing it.
func IdentityComparator[K any]() (Comparator[K], bool) {
	typ := reflect.TypeOf((*K)(nil)).Elem()
	if typ.Kind() != reflect.Interface && !hasIdentityOrder(typ.Kind()) {
		return nil, false
	}
	return func(i, j K) int {
		return compareIdentity(reflect.ValueOf(&i).Elem(), reflect.ValueOf(&j).Elem())
	}, true
}

// IsIdentityOrdered reports whether the dynamic kind of the key
// can be ordered by the IdentityComparator.
// A nil interface is always ordered.
func IsIdentityOrdered[K any](key K) bool {
	v := reflect.ValueOf(&key).Elem()
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	return hasIdentityOrder(v.Kind())
}

func hasIdentityOrder(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.String,
		reflect.Pointer, reflect.UnsafePointer, reflect.Chan,
		reflect.Slice, reflect.Map, reflect.Func:
		return true
	default:
	}
	return false
}

func compareIdentity(i, j reflect.Value) int {
	for i.Kind() == reflect.Interface {
		if i.IsNil() {
			break
		}
		i = i.Elem()
	}
	for j.Kind() == reflect.Interface {
		if j.IsNil() {
			break
		}
		j = j.Elem()
	}

	iNil, jNil := i.Kind() == reflect.Interface, j.Kind() == reflect.Interface
	switch {
	case iNil && jNil:
		return 0
	case iNil:
		return -1
	case jNil:
		return 1
	default:
	}

	if i.Type() != j.Type() {
		if res := cmp.Compare(i.Kind(), j.Kind()); res != 0 {
			return res
		}
		return cmp.Compare(i.Type().String(), j.Type().String())
	}

	switch i.Kind() {
	case reflect.Bool:
		switch {
		case i.Bool() == j.Bool():
			return 0
		case i.Bool():
			return 1
		default:
			return -1
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(i.Int(), j.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(i.Uint(), j.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(i.Float(), j.Float())
	case reflect.String:
		return cmp.Compare(i.String(), j.String())
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan,
		reflect.Slice, reflect.Map, reflect.Func:
		return cmp.Compare(i.Pointer(), j.Pointer())
	default:
	}
	// impossible run to here
	panic( /* debug assertion */ "[infra] identity comparator on a kind without order: " + i.Kind().String())
}
