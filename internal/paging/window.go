package paging

// Window is the row range a statement fetches. Zero Limit means unbounded.
type Window struct {
	Offset int
	Limit  int
}

// PageWindow fetches exactly one page.
func PageWindow(r Request) Window {
	return Window{Offset: r.Offset(), Limit: r.size}
}

// SliceWindow fetches one extra row so the caller can tell whether a next
// slice exists without counting.
func SliceWindow(r Request) Window {
	return Window{Offset: r.Offset(), Limit: r.size + 1}
}

// Cap lowers the window's limit to n when n is smaller. Zero n is no cap.
func (w Window) Cap(n int) Window {
	w.Limit = MinLimit(w.Limit, n)
	return w
}

// MinLimit combines two limits where zero means none.
func MinLimit(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// Apply slices rows in memory. It is used when a fetch plan prevents the
// provider from applying the window itself.
func Apply[T any](rows []T, w Window) []T {
	if w.Offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[w.Offset:]
	if w.Limit > 0 && w.Limit < len(rows) {
		rows = rows[:w.Limit]
	}
	return rows
}
