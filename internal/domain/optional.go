package domain

// Optional marks a patch field as present or absent, so updates never need
// to strip unset values before writing.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// Apply writes the value into dst when present.
func (o Optional[T]) Apply(dst *T) {
	if o.set {
		*dst = o.value
	}
}
