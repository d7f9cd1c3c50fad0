// Package enums holds the string enums shared by models, handlers and the
// Postgres enum types declared in migrations.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](v T, all []T) bool {
	return slices.Contains(all, v)
}

func parse[T ~string](kind, raw string, all []T) (T, error) {
	if v := T(raw); oneOf(v, all) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
