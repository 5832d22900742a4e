package ui

// BoundaryState is Healthy or Degraded.
type BoundaryState interface {
	isBoundaryState()
}

// Healthy renders the wrapped child unchanged.
type Healthy struct{}

// Degraded renders the fallback. It always carries the error that caused it.
type Degraded struct {
	Err *RenderError
}

func (Healthy) isBoundaryState()  {}
func (Degraded) isBoundaryState() {}

// DeriveStateFromError maps a caught error to the next state.
// It depends only on err; a nil err leaves the boundary Healthy.
func DeriveStateFromError(err error) BoundaryState {
	if err == nil {
		return Healthy{}
	}
	return Degraded{Err: AsRenderError(err)}
}

// HasError reports whether s is Degraded.
func HasError(s BoundaryState) bool {
	_, ok := s.(Degraded)
	return ok
}
