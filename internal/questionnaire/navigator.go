package questionnaire

// Navigator steps through topic groups. Moves past either end are ignored.
type Navigator struct {
	index int
	n     int
}

// NewNavigator creates a navigator over n topics, positioned on the first.
func NewNavigator(n int) *Navigator {
	if n < 0 {
		n = 0
	}
	return &Navigator{n: n}
}

// Next advances one topic and reports whether it moved.
func (nv *Navigator) Next() bool {
	if nv.index >= nv.n-1 {
		return false
	}
	nv.index++
	return true
}

// Previous goes back one topic and reports whether it moved.
func (nv *Navigator) Previous() bool {
	if nv.index <= 0 {
		return false
	}
	nv.index--
	return true
}

func (nv *Navigator) Index() int    { return nv.index }
func (nv *Navigator) Len() int      { return nv.n }
func (nv *Navigator) AtStart() bool { return nv.index == 0 }

// AtEnd reports whether the current topic is the last one.
func (nv *Navigator) AtEnd() bool { return nv.n > 0 && nv.index == nv.n-1 }

// CanSubmit reports whether submission is offered at the current position.
func (nv *Navigator) CanSubmit() bool { return nv.AtEnd() }
