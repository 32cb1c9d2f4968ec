package utils

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

// An imprecise float approximate comparison. "optional" variance with ... args strategy
func FloatEquals(a float64, b float64, inputVariance ...float64) bool {
	variance := 0.001
	if len(inputVariance) >= 1 {
		variance = inputVariance[0]
	}
	return math.Abs(a-b) < variance
}

// Round up to the next power of 2. Zero stays zero.
func RoundUpPow(i uint64) uint64 {
	i--
	i |= i >> 1
	i |= i >> 2
	i |= i >> 4
	i |= i >> 8
	i |= i >> 16
	i |= i >> 32
	i++
	return i
}

func Max[T constraints.Ordered](x, y T) T {
	if x < y {
		return y
	}
	return x
}

func Min[T constraints.Ordered](x, y T) T {
	if y < x {
		return y
	}
	return x
}

// Sorted copy of the keys of a map.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
