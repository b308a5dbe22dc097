package bifrost

import "context"

// The Async variants run an operation on its own goroutine and invoke the
// callback exactly once, after the operation has completed. Close waits for
// pending callbacks to return. On a closed store the callback runs before
// the Async call returns. A nil callback discards the result.

// LoadAsync is Load with callback completion.
func (s *SessionStore) LoadAsync(ctx context.Context, sessionID string, callback func(data []byte, err error)) {
	if callback == nil {
		callback = func([]byte, error) {}
	}

	done, err := s.begin()
	if err != nil {
		callback(nil, opError(ErrLoadFailed, err))
		return
	}

	go func() {
		defer done()
		callback(s.load(ctx, sessionID))
	}()
}

// SaveAsync is Save with callback completion.
func (s *SessionStore) SaveAsync(ctx context.Context, sessionID string, data []byte, callback func(err error)) {
	s.async(ErrSaveFailed, callback, func() error {
		return s.save(ctx, sessionID, data)
	})
}

// TouchAsync is Touch with callback completion.
func (s *SessionStore) TouchAsync(ctx context.Context, sessionID string, callback func(err error)) {
	s.async(ErrTouchFailed, callback, func() error {
		return s.touch(ctx, sessionID)
	})
}

// DeleteAsync is Delete with callback completion.
func (s *SessionStore) DeleteAsync(ctx context.Context, sessionID string, callback func(err error)) {
	s.async(ErrDeleteFailed, callback, func() error {
		return s.delete(ctx, sessionID)
	})
}

func (s *SessionStore) async(kind error, callback func(error), op func() error) {
	if callback == nil {
		callback = func(error) {}
	}

	done, err := s.begin()
	if err != nil {
		callback(opError(kind, err))
		return
	}

	go func() {
		defer done()
		callback(op())
	}()
}
