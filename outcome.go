package assetio

// Outcome is the per-element result of a batch operation: either a success
// value or the BatchElementError describing why that element failed.
type Outcome[T any] struct {
	Value T                  `json:"value,omitempty"`
	Err   *BatchElementError `json:"error,omitempty"`
}

// Success wraps a successful element value
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value}
}

// Failure wraps a failed element
func Failure[T any](err *BatchElementError) Outcome[T] {
	return Outcome[T]{Err: err}
}

// OK reports whether the element succeeded
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Get returns the value, or the element error.
func (o Outcome[T]) Get() (T, error) {
	if o.Err != nil {
		var zero T
		return zero, o.Err
	}
	return o.Value, nil
}
