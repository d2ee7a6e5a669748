package runtime

import (
	"context"
	"sync/atomic"
)

// instancePool guards the single long-lived module instance belonging to
// a plugin. Unlike a stateless-request pool, a plugin instance carries
// guest-side state (registered providers, open sockets) across calls, so
// the pool never grows beyond one instance and never falls back to
// instantiating a throwaway replica on contention: callers block until
// the instance is returned (adapted from the gateway's channel-based
// InstancePool, narrowed to size 1 for a stateful singleton).
type instancePool struct {
	slot chan *instance

	borrows atomic.Int64
	waits   atomic.Int64
}

func newInstancePool(in *instance) *instancePool {
	p := &instancePool{slot: make(chan *instance, 1)}
	p.slot <- in
	return p
}

// borrow blocks until the instance is available or ctx is done.
func (p *instancePool) borrow(ctx context.Context) (*instance, error) {
	p.borrows.Add(1)
	select {
	case in := <-p.slot:
		return in, nil
	default:
		p.waits.Add(1)
		select {
		case in := <-p.slot:
			return in, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *instancePool) giveBack(in *instance) {
	p.slot <- in
}

// drain removes the instance for good (used when closing the plugin),
// blocking until any in-flight call returns it.
func (p *instancePool) drain() *instance {
	return <-p.slot
}

type poolStats struct {
	Borrows int64 `json:"borrows"`
	Waits   int64 `json:"waits"`
}

func (p *instancePool) stats() poolStats {
	return poolStats{Borrows: p.borrows.Load(), Waits: p.waits.Load()}
}
