package stack

// New returns an empty stack with room for n elements.
func New[T any](n int) *stack[T] {
	return &stack[T]{make([]T, 0, n)}
}

func (s *stack[T]) Len() int {
	return len(s.xs)
}

func (s *stack[T]) IsEmpty() bool {
	return len(s.xs) == 0
}

func (s *stack[T]) Pop() (T, bool) {
	var v T

	if n := len(s.xs); n > 0 {
		v = s.xs[n-1]
		s.xs = s.xs[:n-1]
		return v, true
	}
	return v, false
}

func (s *stack[T]) Push(v T) {
	s.xs = append(s.xs, v)
}
