package radio

import "sync"

// FakeLine records the values it was driven to.
type FakeLine struct {
	mu     sync.Mutex
	Values []int
	// SetError, if set, is returned by SetValue.
	SetError error
	Closed   bool
}

// SetValue records v.
func (f *FakeLine) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, v)
	return nil
}

// Close marks the line closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Last returns the most recent value, or -1 if none.
func (f *FakeLine) Last() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return -1
	}
	return f.Values[len(f.Values)-1]
}
