package provisioning

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/dmitrymomot/subledger/pkg/ratelimit"
)

// Guarded bounds the number of concurrent panel calls with a connection
// pool. A call that finds the pool full fails with ErrPanelBusy instead of
// queueing.
type Guarded struct {
	next Provisioner
	pool *ratelimit.ConnectionPool
	seq  atomic.Uint64
}

// NewGuarded wraps next with pool.
func NewGuarded(next Provisioner, pool *ratelimit.ConnectionPool) *Guarded {
	return &Guarded{next: next, pool: pool}
}

func (g *Guarded) acquire() (func(), error) {
	id := "panel-" + strconv.FormatUint(g.seq.Add(1), 10)
	if !g.pool.Acquire(id) {
		return nil, ErrPanelBusy
	}
	return func() { g.pool.Release(id) }, nil
}

func (g *Guarded) CreateAccount(ctx context.Context, p Profile) (Handle, error) {
	release, err := g.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	return g.next.CreateAccount(ctx, p)
}

func (g *Guarded) DeleteAccount(ctx context.Context, h Handle) error {
	release, err := g.acquire()
	if err != nil {
		return err
	}
	defer release()
	return g.next.DeleteAccount(ctx, h)
}

func (g *Guarded) GetInbounds(ctx context.Context) ([]Inbound, error) {
	release, err := g.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return g.next.GetInbounds(ctx)
}

func (g *Guarded) SetInboundEnabled(ctx context.Context, id int, enabled bool) error {
	release, err := g.acquire()
	if err != nil {
		return err
	}
	defer release()
	return g.next.SetInboundEnabled(ctx, id, enabled)
}

func (g *Guarded) CheckSession(ctx context.Context) error {
	release, err := g.acquire()
	if err != nil {
		return err
	}
	defer release()
	return CheckSession(ctx, g.next)
}
