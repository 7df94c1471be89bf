package clone

import "slices"

type Cloner[T any] interface {
	Clone() T
}

func Ptr[T Cloner[T]](a *T) *T {
	if a == nil {
		return nil
	}
	b := (*a).Clone()
	return &b
}

func TrivialPtr[T any](a *T) *T {
	if a == nil {
		return nil
	}
	b := *a
	return &b
}

func DeepSlice[T Cloner[T]](a []T) []T {
	if a == nil {
		return nil
	}
	res := make([]T, len(a))
	for i, v := range a {
		res[i] = v.Clone()
	}
	return res
}

// Slice is like slices.Clone, but keeps nil slices nil and empty slices non-nil.
func Slice[T any](a []T) []T {
	if a == nil {
		return nil
	}
	return slices.Clip(slices.Clone(a))
}
