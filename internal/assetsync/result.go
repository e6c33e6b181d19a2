package assetsync

// Kind discriminates the cases of a Result.
type Kind int

const (
	KindLoading Kind = iota
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the uniform outcome handed to consumers. The zero value is Loading.
//
// A successful result served from the cache always carries the snapshot
// timestamp; a result served from the network never does.
type Result[T any] struct {
	kind      Kind
	data      T
	fromCache bool
	ts        int64
	err       error
}

// Success builds a successful result. ts is dropped unless fromCache is set.
func Success[T any](data T, fromCache bool, ts int64) Result[T] {
	r := Result[T]{kind: KindSuccess, data: data, fromCache: fromCache}
	if fromCache {
		r.ts = ts
	}
	return r
}

func Failure[T any](err error) Result[T] {
	return Result[T]{kind: KindError, err: err}
}

func Loading[T any]() Result[T] {
	return Result[T]{kind: KindLoading}
}

func (r Result[T]) Kind() Kind      { return r.kind }
func (r Result[T]) IsSuccess() bool { return r.kind == KindSuccess }
func (r Result[T]) IsError() bool   { return r.kind == KindError }
func (r Result[T]) IsLoading() bool { return r.kind == KindLoading }
func (r Result[T]) Data() T         { return r.data }
func (r Result[T]) FromCache() bool { return r.fromCache }
func (r Result[T]) Err() error      { return r.err }

// Timestamp returns the snapshot time (epoch ms) of cached data.
func (r Result[T]) Timestamp() (int64, bool) {
	if r.kind != KindSuccess || !r.fromCache {
		return 0, false
	}
	return r.ts, true
}

// Match calls exactly one of the handlers, chosen by the result's kind.
// A nil handler is skipped.
func (r Result[T]) Match(onLoading func(), onSuccess func(data T, fromCache bool, ts int64, hasTS bool), onError func(err error)) {
	switch r.kind {
	case KindSuccess:
		if onSuccess != nil {
			ts, ok := r.Timestamp()
			onSuccess(r.data, r.fromCache, ts, ok)
		}
	case KindError:
		if onError != nil {
			onError(r.err)
		}
	default:
		if onLoading != nil {
			onLoading()
		}
	}
}

// Message is the user-facing text of err.
func Message(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
