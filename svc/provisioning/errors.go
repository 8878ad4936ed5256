package provisioning

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid panel configuration")
	ErrUnauthorized     = errors.New("panel rejected credentials")
	ErrPermanentFailure = errors.New("permanent panel failure")
	ErrTemporaryFailure = errors.New("temporary panel failure")
	ErrTimeout          = errors.New("panel request timeout")
	ErrCircuitOpen      = errors.New("panel circuit breaker is open")
	ErrPanelBusy        = errors.New("panel connection pool exhausted")
	ErrAccountExists    = errors.New("panel account already exists")
	ErrInboundNotFound  = errors.New("inbound not found")
)
