package storage

// Result is the outcome of one remote call: a value or the reason it failed.
type Result[T any] struct {
	value T
	err   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err builds a failed result. A nil err is replaced so the result stays failed.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = errNilFailure
	}
	return Result[T]{err: err}
}

// From lifts a (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the value of a successful result, the zero value otherwise.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure reason, nil for a successful result.
func (r Result[T]) Err() error { return r.err }

// Unwrap returns the result as a (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}
