package replication

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
)

var errMemoryClosed = errors.New("memory mirror closed")

// MemoryDialer is an in-process mirror shared by every connection it opens.
// It stands in for a remote store in development and tests.
type MemoryDialer struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[string]map[int]chan []byte
	nextID   int
	dialErr  error
	putErr   error
	puts     int
}

// NewMemoryDialer builds an empty in-memory mirror.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{
		data:     make(map[string][]byte),
		watchers: make(map[string]map[int]chan []byte),
	}
}

// Schemes implements Dialer.
func (d *MemoryDialer) Schemes() []string { return []string{"memory://", "https://"} }

// Dial implements Dialer.
func (d *MemoryDialer) Dial(_ context.Context, _ models.CloudCredentials) (Mirror, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &memoryMirror{d: d}, nil
}

// FailWith makes subsequent dials or writes fail. Pass nil to clear.
func (d *MemoryDialer) FailWith(dialErr, putErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = dialErr
	d.putErr = putErr
}

// Stored returns the raw value at path.
func (d *MemoryDialer) Stored(path string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data[path]
}

// Puts counts successful writes.
func (d *MemoryDialer) Puts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.puts
}

// Write stores payload at path as another device would and notifies watchers.
func (d *MemoryDialer) Write(path string, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeLocked(path, payload)
}

func (d *MemoryDialer) writeLocked(path string, payload []byte) {
	if path == RootPath {
		for p := range d.data {
			delete(d.data, p)
			d.notifyLocked(p, []byte("null"))
		}
		return
	}
	buf := append([]byte(nil), payload...)
	d.data[path] = buf
	d.notifyLocked(path, buf)
}

func (d *MemoryDialer) notifyLocked(path string, payload []byte) {
	for _, ch := range d.watchers[path] {
		select {
		case ch <- payload:
		default:
		}
	}
}

type memoryMirror struct {
	d      *MemoryDialer
	mu     sync.Mutex
	closed bool
}

func (m *memoryMirror) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *memoryMirror) Fetch(_ context.Context, path string) ([]byte, error) {
	if m.isClosed() {
		return nil, errMemoryClosed
	}
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if path != RootPath {
		return append([]byte(nil), m.d.data[path]...), nil
	}
	root := make(map[string]json.RawMessage, len(m.d.data))
	for p, v := range m.d.data {
		root[p] = v
	}
	return json.Marshal(root)
}

func (m *memoryMirror) Put(_ context.Context, path string, payload []byte) error {
	if m.isClosed() {
		return errMemoryClosed
	}
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if m.d.putErr != nil {
		return m.d.putErr
	}
	m.d.puts++
	m.d.writeLocked(path, payload)
	return nil
}

func (m *memoryMirror) Watch(ctx context.Context, path string, onChange func([]byte)) error {
	ch := make(chan []byte, 64)

	m.d.mu.Lock()
	m.d.nextID++
	id := m.d.nextID
	if m.d.watchers[path] == nil {
		m.d.watchers[path] = make(map[int]chan []byte)
	}
	m.d.watchers[path][id] = ch
	if current, ok := m.d.data[path]; ok {
		ch <- current
	}
	m.d.mu.Unlock()

	defer func() {
		m.d.mu.Lock()
		delete(m.d.watchers[path], id)
		m.d.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-ch:
			onChange(payload)
		}
	}
}

func (m *memoryMirror) Ping(context.Context) error {
	if m.isClosed() {
		return errMemoryClosed
	}
	return nil
}

func (m *memoryMirror) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
