// Package ptrutil holds the pointer helpers for openrtb's pointer-typed fields.
package ptrutil

// ToPtr returns a pointer to v.
func ToPtr[T any](v T) *T {
	return &v
}

// Clone returns a shallow copy of what v points to, or nil for a nil v.
func Clone[T any](v *T) *T {
	if v == nil {
		return nil
	}

	clone := *v
	return &clone
}

// ValueOrDefault dereferences v, substituting the zero value for a nil v.
func ValueOrDefault[T any](v *T) T {
	if v != nil {
		return *v
	}

	var def T
	return def
}
