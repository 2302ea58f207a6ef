package trigger

import "sync"

// #region mock
// Mock records codes instead of sending them.
type Mock struct {
	mu     sync.Mutex
	codes  []Code
	closed bool
	err    error
}

// NewMock returns an empty recorder.
func NewMock() *Mock {
	return &Mock{}
}

// FailWith makes every later Signal return err.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Signal records code. Code 0 is ignored, as on hardware.
func (m *Mock) Signal(code Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if code != 0 {
		m.codes = append(m.codes, code)
	}
	return nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Codes returns a copy of everything signalled so far.
func (m *Mock) Codes() []Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Code(nil), m.codes...)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// #endregion mock
