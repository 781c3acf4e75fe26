package model

// Future is a single-threaded promise: it settles once and notifies waiters
// synchronously. Callers that need promise-style deferral wrap the callback
// themselves.
type Future struct {
	done    bool
	value   any
	err     error
	handled bool
	waiters []func(any, error)
}

// Resolved returns a future already fulfilled with v.
func Resolved(v any) *Future {
	return &Future{done: true, value: v}
}

// Rejected returns a future already rejected with err.
func Rejected(err error) *Future {
	return &Future{done: true, err: err}
}

// Then registers fn to run once the future settles. If it has already settled,
// fn runs immediately.
func (f *Future) Then(fn func(any, error)) {
	f.handled = true
	if f.done {
		fn(f.value, f.err)
		return
	}
	f.waiters = append(f.waiters, fn)
}

// Resolve fulfills the future. It reports false if it had already settled.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil)
}

// Reject rejects the future. It reports false if it had already settled.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) bool {
	if f.done {
		return false
	}
	f.done, f.value, f.err = true, v, err
	waiters := f.waiters
	f.waiters = nil
	for _, fn := range waiters {
		fn(v, err)
	}
	return true
}

// Done reports whether the future has settled.
func (f *Future) Done() bool { return f.done }

// Handled reports whether any waiter was ever attached.
func (f *Future) Handled() bool { return f.handled }

// Result returns the settled value and error.
func (f *Future) Result() (any, error) { return f.value, f.err }

// All settles with the positional values of fs once all have fulfilled, or with
// the first rejection. Futures still running after a rejection are not cancelled.
func All(fs []*Future) *Future {
	agg := &Future{}
	values := make([]any, len(fs))
	remaining := len(fs)
	if remaining == 0 {
		agg.Resolve(values)
		return agg
	}
	for i, f := range fs {
		f.Then(func(v any, err error) {
			if err != nil {
				agg.Reject(err)
				return
			}
			values[i] = v
			remaining--
			if remaining == 0 {
				agg.Resolve(values)
			}
		})
	}
	return agg
}
