// Package enums holds the closed string vocabularies stored on orders and
// carried in tokens. Values are case sensitive.
package enums

import "fmt"

func oneOf[T ~string](set []T, v T) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}

func parse[T ~string](set []T, raw, label string) (T, error) {
	if v := T(raw); oneOf(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, raw)
}
