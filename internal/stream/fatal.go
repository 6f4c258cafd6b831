package stream

import "errors"

// fatalError marks a failure that must terminate the subscription without
// consuming the transport retry budget, such as a rejected auth handshake.
type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal wraps err so the stream client stops instead of reconnecting.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
