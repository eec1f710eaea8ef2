package utils

// Value dereferences v, returning the zero value for nil. Nullable columns scan into pointers.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}
