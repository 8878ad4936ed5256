// Package ratelimit holds the admission controls shared by the HTTP surface
// and the provisioning adapter.
//
// SlidingWindow over a MemoryStore counts events per key inside a moving
// window. ConnectionPool bounds how many identifiers hold an outbound slot
// at once. Lockout blocks a key after repeated failures. Guard bundles the
// three as one explicit, process-wide object:
//
//	guard, err := ratelimit.NewGuard(cfg)
//	if err != nil {
//		return err
//	}
//	defer guard.Close()
//
//	if !guard.Admit(ctx, chatID) {
//		return errTooManyRequests
//	}
package ratelimit
