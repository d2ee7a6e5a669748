package socket

import (
	"net"
	"testing"
	"time"
)

func TestBindSendRecvLoopback(t *testing.T) {
	server := New()
	if err := server.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind server: %v", err)
	}
	defer server.Close()

	serverAddr := server.conn.LocalAddr().(*net.UDPAddr)

	client := New()
	if err := client.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind client: %v", err)
	}
	defer client.Close()

	if _, err := client.Send(serverAddr.IP.String(), serverAddr.Port, []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d, ok := server.Recv(); ok {
			if string(d.Data) != "hello" {
				t.Errorf("got %q, want hello", d.Data)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for datagram")
}

func TestRecvEmptyReturnsFalse(t *testing.T) {
	s := New()
	if err := s.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer s.Close()
	if _, ok := s.Recv(); ok {
		t.Errorf("expected no pending datagram")
	}
}

func TestPendingRingDropsOldest(t *testing.T) {
	s := New()
	for i := 0; i < maxPending+10; i++ {
		s.mu.Lock()
		if len(s.pending) >= maxPending {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, Datagram{Data: []byte{byte(i)}})
		s.mu.Unlock()
	}
	if s.Pending() != maxPending {
		t.Fatalf("got %d pending, want %d", s.Pending(), maxPending)
	}
	d, _ := s.Recv()
	if d.Data[0] != 10 {
		t.Errorf("expected oldest-surviving datagram to be index 10, got %d", d.Data[0])
	}
}

func TestDeferredOptionsReplayedAfterBind(t *testing.T) {
	s := New()
	if err := s.SetOption("multicast_ttl", "4"); err != nil {
		t.Fatalf("queue option: %v", err)
	}
	if len(s.deferred) != 1 {
		t.Fatalf("expected option to be queued before bind")
	}
	if err := s.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer s.Close()
	if len(s.deferred) != 0 {
		t.Errorf("expected deferred queue to drain on bind")
	}
}

func TestSendBeforeBindFails(t *testing.T) {
	s := New()
	if _, err := s.Send("127.0.0.1", 9999, []byte("x")); err == nil {
		t.Errorf("expected send on unbound socket to fail")
	}
}
