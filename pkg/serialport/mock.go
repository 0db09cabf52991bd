package serialport

import (
	"io"
	"sync"
	"time"
)

// MockPort implements Port for testing.
type MockPort struct {
	ReadData    []byte
	WrittenData []byte
	ReadError   error
	WriteError  error
	CloseError  error
	Closed      bool
	ReadDelay   time.Duration

	lock sync.Mutex
}

// NewMockPort creates a MockPort which reads data and then io.EOF.
func NewMockPort(data []byte) *MockPort {
	return &MockPort{ReadData: data}
}

// Read implements io.Reader.
func (m *MockPort) Read(p []byte) (n int, err error) {
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.ReadError != nil {
		return 0, m.ReadError
	}
	if m.Closed || len(m.ReadData) == 0 {
		return 0, io.EOF
	}
	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

// Write implements io.Writer.
func (m *MockPort) Write(p []byte) (n int, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.WrittenData = append(m.WrittenData, p...)
	return len(p), nil
}

// Close implements io.Closer.
func (m *MockPort) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Closed = true
	return m.CloseError
}
