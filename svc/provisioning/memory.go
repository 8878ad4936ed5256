package provisioning

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryProvisioner keeps accounts in process. It stands in for the panel
// in local runs and tests, and can be told to fail or stall.
type MemoryProvisioner struct {
	mu          sync.Mutex
	accounts    map[Handle]Profile
	inbounds    map[int]Inbound
	createErr   error
	deleteErr   error
	sessionErr  error
	createDelay time.Duration
	creates     int
	deletes     int
}

// NewMemoryProvisioner creates an empty provisioner serving inbounds.
func NewMemoryProvisioner(inbounds ...Inbound) *MemoryProvisioner {
	m := &MemoryProvisioner{
		accounts: make(map[Handle]Profile),
		inbounds: make(map[int]Inbound, len(inbounds)),
	}
	for _, in := range inbounds {
		m.inbounds[in.ID] = in
	}
	return m
}

// FailCreate makes CreateAccount return err until cleared with nil.
func (m *MemoryProvisioner) FailCreate(err error) {
	m.mu.Lock()
	m.createErr = err
	m.mu.Unlock()
}

// FailDelete makes DeleteAccount return err until cleared with nil.
func (m *MemoryProvisioner) FailDelete(err error) {
	m.mu.Lock()
	m.deleteErr = err
	m.mu.Unlock()
}

// FailSession makes CheckSession return err until cleared with nil.
func (m *MemoryProvisioner) FailSession(err error) {
	m.mu.Lock()
	m.sessionErr = err
	m.mu.Unlock()
}

// SetCreateDelay makes CreateAccount block for d or until ctx is done.
func (m *MemoryProvisioner) SetCreateDelay(d time.Duration) {
	m.mu.Lock()
	m.createDelay = d
	m.mu.Unlock()
}

func (m *MemoryProvisioner) CreateAccount(ctx context.Context, p Profile) (Handle, error) {
	m.mu.Lock()
	delay, failure := m.createDelay, m.createErr
	m.creates++
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if failure != nil {
		return "", failure
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	h := Handle(p.Username)
	if _, ok := m.accounts[h]; ok {
		return "", ErrAccountExists
	}
	m.accounts[h] = p
	return h, nil
}

func (m *MemoryProvisioner) DeleteAccount(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.accounts, h)
	return nil
}

func (m *MemoryProvisioner) GetInbounds(context.Context) ([]Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Collect(maps.Values(m.inbounds))
	slices.SortFunc(out, func(a, b Inbound) int { return a.ID - b.ID })
	return out, nil
}

func (m *MemoryProvisioner) SetInboundEnabled(_ context.Context, id int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.inbounds[id]
	if !ok {
		return ErrInboundNotFound
	}
	in.Enabled = enabled
	m.inbounds[id] = in
	return nil
}

func (m *MemoryProvisioner) CheckSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionErr
}

// Has reports whether an account exists for h.
func (m *MemoryProvisioner) Has(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[h]
	return ok
}

// Accounts returns the number of live accounts.
func (m *MemoryProvisioner) Accounts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// Calls returns how many create and delete calls were made.
func (m *MemoryProvisioner) Calls() (creates, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.deletes
}
