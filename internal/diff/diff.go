// Package diff compares two snapshots of an entity collection.
//
// Change detection is positional: two collections are unchanged only when they
// have the same length and every element equals the element at the same index
// in the other collection. A reorder that breaks that pairing counts as a
// change even though both collections hold the same elements.
//
// When a change is detected the delta is the symmetric difference of the two
// collections under full structural equality: every element of the current
// collection missing from the cached one, followed by every element of the
// cached collection missing from the current one. A record that changed a
// single field therefore appears twice, once with its new value and once
// with its old value.
package diff

// Result is the verdict of a comparison.
type Result[T any] struct {
	Changed bool
	// Delta is nil when Changed is false and never nil when it is true.
	Delta []T
}

// Equaler is implemented by records that define their own structural equality.
type Equaler[T any] interface {
	Equal(other T) bool
}

// Equal is the equality of comparable types.
func Equal[T comparable](a, b T) bool { return a == b }

// Compare runs change detection and, on change, computes the delta.
func Compare[T any](cached, current []T, eq func(a, b T) bool) Result[T] {
	if !changed(cached, current, eq) {
		return Result[T]{}
	}
	return Result[T]{Changed: true, Delta: SymmetricDifference(cached, current, eq)}
}

// CompareRecords is Compare for types carrying an Equal method.
func CompareRecords[T Equaler[T]](cached, current []T) Result[T] {
	return Compare(cached, current, func(a, b T) bool { return a.Equal(b) })
}

func changed[T any](cached, current []T, eq func(a, b T) bool) bool {
	if len(cached) != len(current) {
		return true
	}
	for i := range current {
		if !eq(current[i], cached[i]) {
			return true
		}
	}
	return false
}

// SymmetricDifference returns the elements of current absent from cached,
// followed by the elements of cached absent from current.
func SymmetricDifference[T any](cached, current []T, eq func(a, b T) bool) []T {
	out := make([]T, 0)
	out = appendMissing(out, current, cached, eq)
	out = appendMissing(out, cached, current, eq)
	return out
}

func appendMissing[T any](dst, from, in []T, eq func(a, b T) bool) []T {
	for _, x := range from {
		if !contains(in, x, eq) {
			dst = append(dst, x)
		}
	}
	return dst
}

func contains[T any](s []T, x T, eq func(a, b T) bool) bool {
	for _, y := range s {
		if eq(x, y) {
			return true
		}
	}
	return false
}
