package socket

import "sync"

// Manager tracks the UDP sockets a single plugin currently owns, keyed by
// the opaque handle the guest was given back from sk_socket_create. Each
// plugin gets its own Manager so Close can tear down every socket a
// crashed or stopped plugin forgot to close (spec §4.D, §4.I teardown).
type Manager struct {
	mu      sync.Mutex
	sockets map[int32]*Socket
	nextID  int32
}

func NewManager() *Manager {
	return &Manager{sockets: make(map[int32]*Socket)}
}

// Create allocates a new socket and returns its handle.
func (m *Manager) Create() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	handle := m.nextID
	m.sockets[handle] = New()
	return handle
}

func (m *Manager) get(handle int32) (*Socket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sockets[handle]
	return s, ok
}

func (m *Manager) Bind(handle int32, host string, port int) bool {
	s, ok := m.get(handle)
	if !ok {
		return false
	}
	return s.Bind(host, port) == nil
}

func (m *Manager) SetOption(handle int32, name, value string) bool {
	s, ok := m.get(handle)
	if !ok {
		return false
	}
	return s.SetOption(name, value) == nil
}

func (m *Manager) Send(handle int32, host string, port int, data []byte) int32 {
	s, ok := m.get(handle)
	if !ok {
		return -1
	}
	n, err := s.Send(host, port, data)
	if err != nil {
		return -1
	}
	return int32(n)
}

func (m *Manager) Recv(handle int32) (data []byte, fromHost string, fromPort int32, ok bool) {
	s, found := m.get(handle)
	if !found {
		return nil, "", 0, false
	}
	d, has := s.Recv()
	if !has {
		return nil, "", 0, false
	}
	return d.Data, d.FromHost, int32(d.FromPort), true
}

// Close closes and forgets a single socket.
func (m *Manager) Close(handle int32) {
	m.mu.Lock()
	s, ok := m.sockets[handle]
	delete(m.sockets, handle)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll tears down every socket the plugin still owns, used when the
// plugin stops, crashes, or is disabled.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sockets := m.sockets
	m.sockets = make(map[int32]*Socket)
	m.mu.Unlock()
	for _, s := range sockets {
		s.Close()
	}
}
