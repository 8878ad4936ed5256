package provisioning

import (
	"context"
	"time"
)

// Handle identifies an account on the provisioning panel.
type Handle string

// Profile describes the account to create.
type Profile struct {
	Username  string
	ExpireAt  time.Time
	DataLimit int64
	InboundID int
}

// Inbound is a panel entry point that accounts attach to.
type Inbound struct {
	ID       int    `json:"id"`
	Tag      string `json:"tag"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Enabled  bool   `json:"enable"`
}

// Provisioner creates and removes accounts on the external panel.
// DeleteAccount of an unknown handle succeeds.
type Provisioner interface {
	CreateAccount(ctx context.Context, p Profile) (Handle, error)
	DeleteAccount(ctx context.Context, h Handle) error
	GetInbounds(ctx context.Context) ([]Inbound, error)
	SetInboundEnabled(ctx context.Context, id int, enabled bool) error
}

// SessionChecker is implemented by provisioners that hold an authenticated
// session with the panel.
type SessionChecker interface {
	CheckSession(ctx context.Context) error
}

// CheckSession verifies the panel session of p. Provisioners without a
// session are always considered healthy.
func CheckSession(ctx context.Context, p Provisioner) error {
	if sc, ok := p.(SessionChecker); ok {
		return sc.CheckSession(ctx)
	}
	return nil
}
