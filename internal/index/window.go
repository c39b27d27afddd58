package index

import "fmt"

// Window is the half-open row range [Offset, Offset+Size).
type Window struct {
	Offset int64
	Size   int64
}

// End returns the exclusive upper bound of the window.
func (w Window) End() int64 {
	return w.Offset + w.Size
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d)", w.Offset, w.End())
}

// Windows is a single-pass iterator over the windows that partition
// [0, total). It is not restartable; call Partition again for a new pass.
type Windows struct {
	total int64
	size  int64
	next  int64
}

// Partition returns an iterator over floor(total/size) full windows followed
// by one shorter window holding the remainder, if any. total == 0 yields no
// windows; size >= total yields a single window of total rows.
func Partition(total, size int64) (*Windows, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, size)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeTotal, total)
	}
	return &Windows{total: total, size: size}, nil
}

// HasNext reports whether Next would yield another window.
func (w *Windows) HasNext() bool {
	return w.next < w.total
}

// Next advances the iterator. The second result is false once the range is
// exhausted.
func (w *Windows) Next() (Window, bool) {
	if !w.HasNext() {
		return Window{}, false
	}
	win := Window{Offset: w.next, Size: min(w.size, w.total-w.next)}
	w.next = win.End()
	return win, true
}

// Remaining returns how many windows Next has yet to yield.
func (w *Windows) Remaining() int64 {
	left := w.total - w.next
	return (left + w.size - 1) / w.size
}
