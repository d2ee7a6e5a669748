// Package socket implements the per-plugin UDP socket manager (spec §4.D):
// bounded receive buffering and a deferred-options queue applied once the
// kernel socket is bound, since wazero guests issue "set option" calls for
// things like multicast membership before an address exists to apply them
// to.
package socket

import (
	"fmt"
	"net"
	"sync"
)

// maxPending caps the number of buffered inbound datagrams per socket; the
// oldest is dropped to make room for a newer one once full (spec
// invariant: bounded memory over guaranteed delivery).
const maxPending = 1000

// Datagram is one buffered inbound UDP packet.
type Datagram struct {
	Data     []byte
	FromHost string
	FromPort int
}

type pendingOption struct {
	name  string
	value string
}

// Socket is one UDP socket owned by a plugin.
type Socket struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	bound   bool
	pending []Datagram
	deferred []pendingOption
	closed  bool
}

// New creates an unbound socket. Bind must be called before Send/Recv can
// exchange data; option calls made before Bind are queued and replayed in
// order immediately after binding succeeds.
func New() *Socket {
	return &Socket{}
}

// SetOption applies name/value immediately if the socket is already bound,
// otherwise queues it for replay at Bind time.
func (s *Socket) SetOption(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		s.deferred = append(s.deferred, pendingOption{name, value})
		return nil
	}
	return s.applyOption(name, value)
}

// Bind opens the UDP socket at host:port and replays any options queued
// before the bind.
func (s *Socket) Bind(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound {
		return fmt.Errorf("socket: already bound")
	}

	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("socket: bind %s:%d: %w", host, port, err)
	}
	s.conn = conn
	s.bound = true

	for _, opt := range s.deferred {
		if err := s.applyOption(opt.name, opt.value); err != nil {
			conn.Close()
			s.bound = false
			s.conn = nil
			return err
		}
	}
	s.deferred = nil

	go s.readLoop()
	return nil
}

func (s *Socket) applyOption(name, value string) error {
	pc := ipv4PacketConn(s.conn)
	switch name {
	case "multicast_join":
		iface, _ := net.InterfaceByName(value)
		group, err := net.ResolveUDPAddr("udp", value)
		if err != nil {
			ip := net.ParseIP(value)
			if ip == nil {
				return fmt.Errorf("socket: invalid multicast group %q", value)
			}
			group = &net.UDPAddr{IP: ip}
		}
		return pc.JoinGroup(iface, &net.UDPAddr{IP: group.IP})
	case "multicast_leave":
		ip := net.ParseIP(value)
		if ip == nil {
			return fmt.Errorf("socket: invalid multicast group %q", value)
		}
		return pc.LeaveGroup(nil, &net.UDPAddr{IP: ip})
	case "multicast_ttl":
		return setIntOption(value, pc.SetMulticastTTL)
	case "multicast_loopback":
		return setBoolOption(value, pc.SetMulticastLoopback)
	case "broadcast":
		// net.ListenUDP sockets accept broadcast by default on most
		// platforms; the option is accepted without setting anything.
		return nil
	default:
		return fmt.Errorf("socket: unknown option %q", name)
	}
}

// Send writes a datagram to host:port. Requires the socket to be bound.
func (s *Socket) Send(host string, port int, data []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	bound := s.bound
	s.mu.Unlock()
	if !bound {
		return 0, fmt.Errorf("socket: not bound")
	}
	return conn.WriteToUDP(data, &net.UDPAddr{IP: net.ParseIP(host), Port: port})
}

// Recv pops the oldest buffered datagram, if any.
func (s *Socket) Recv() (Datagram, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Datagram{}, false
	}
	d := s.pending[0]
	s.pending = s.pending[1:]
	return d, true
}

// Pending reports how many datagrams are currently buffered.
func (s *Socket) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Socket) readLoop() {
	buf := make([]byte, 65536)
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed || conn == nil {
			return
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		s.mu.Lock()
		if len(s.pending) >= maxPending {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, Datagram{Data: data, FromHost: addr.IP.String(), FromPort: addr.Port})
		s.mu.Unlock()
	}
}

// Close releases the underlying kernel socket. Idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
