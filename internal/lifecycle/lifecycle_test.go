package lifecycle

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubInstance struct {
	startErr error
	stopErr  error
	started  int
	stopped  int
}

func (s *stubInstance) Start(ctx context.Context, configJSON string) error {
	s.started++
	return s.startErr
}
func (s *stubInstance) Stop(ctx context.Context) error {
	s.stopped++
	return s.stopErr
}
func (s *stubInstance) Close(ctx context.Context) error { return nil }

type stubTeardown struct {
	released []string
}

func (t *stubTeardown) ReleasePlugin(pluginID string) {
	t.released = append(t.released, pluginID)
}

func TestStartStopCycle(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	inst := &stubInstance{}
	r := m.Register("p1", inst)

	if r.State() != StateStopped {
		t.Fatalf("expected initial state stopped, got %s", r.State())
	}
	if err := r.Start(context.Background(), "{}"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.State() != StateRunning {
		t.Fatalf("expected running, got %s", r.State())
	}

	td := &stubTeardown{}
	if err := r.Stop(context.Background(), td); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if len(td.released) != 1 || td.released[0] != "p1" {
		t.Errorf("expected teardown to release p1, got %v", td.released)
	}
}

func TestStartFailurePutsPluginInCrashed(t *testing.T) {
	m := NewManager(nil, zap.NewNop())
	inst := &stubInstance{startErr: errors.New("boom")}
	r := m.Register("p1", inst)

	if err := r.Start(context.Background(), "{}"); err == nil {
		t.Fatalf("expected Start to fail")
	}
	if r.State() != StateCrashed {
		t.Fatalf("expected crashed, got %s", r.State())
	}
}

func TestCrashBackoffEscalates(t *testing.T) {
	r := &Record{ID: "p1", instance: &stubInstance{}, state: StateRunning, backoff: minBackoff}

	_, b1 := r.Crash(nil, zap.NewNop())
	_, b2 := r.Crash(nil, zap.NewNop())
	if b2 <= b1 {
		t.Errorf("expected backoff to escalate: %v then %v", b1, b2)
	}
}

func TestHardDisableAfterThreeCrashesInWindow(t *testing.T) {
	r := &Record{ID: "p1", instance: &stubInstance{}, state: StateRunning, backoff: minBackoff}

	var last State
	for i := 0; i < 4; i++ {
		last, _ = r.Crash(nil, zap.NewNop())
	}
	if last != StateDisabled {
		t.Fatalf("expected hard-disable on 4th crash within window, got %s", last)
	}
	if r.State() != StateDisabled {
		t.Fatalf("expected record state disabled, got %s", r.State())
	}
}

func TestEnableClearsDisable(t *testing.T) {
	r := &Record{ID: "p1", instance: &stubInstance{}, state: StateDisabled}
	r.Enable()
	if r.State() != StateStopped {
		t.Fatalf("expected stopped after Enable, got %s", r.State())
	}
}

func TestReloadStopsThenStarts(t *testing.T) {
	inst := &stubInstance{}
	m := NewManager(nil, zap.NewNop())
	r := m.Register("p1", inst)
	r.Start(context.Background(), "{}")

	if err := r.Reload(context.Background(), nil, `{"updated":true}`); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if inst.stopped != 1 || inst.started != 2 {
		t.Errorf("expected 1 stop and 2 starts, got stopped=%d started=%d", inst.stopped, inst.started)
	}
}
