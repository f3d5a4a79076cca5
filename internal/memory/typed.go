package memory

// Value returns ref's value asserted to T.
func Value[T any](s *Store, ref Ref) (T, bool) {
	var zero T
	raw, ok := s.Get(ref)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// First returns the first live reference matching c and its value as T.
func First[T any](s *Store, c Criteria) (T, Ref, bool) {
	var zero T
	for _, ref := range s.Search(c) {
		if v, ok := Value[T](s, ref); ok {
			return v, ref, true
		}
	}
	return zero, Ref{}, false
}

// Update applies fn to ref's current value and stores the result.
func Update[T any](s *Store, ref Ref, fn func(T) T) (T, error) {
	cur, _ := Value[T](s, ref)
	next := fn(cur)
	if err := s.Set(ref, next); err != nil {
		var zero T
		return zero, err
	}
	return next, nil
}
