// Package provisioning provisions subscription accounts on the external
// panel.
//
// Provisioner is the collaborator the subscription engine calls. The
// production adapter is PanelClient, a REST client with bearer token
// authentication, retries for read-only calls and a circuit breaker.
// Wrappers add cross-cutting behavior without changing the interface:
//
//	var p provisioning.Provisioner = client
//	p = provisioning.NewGuarded(p, guard.Pool())            // bounded concurrency
//	p = provisioning.NewCachedInbounds(p, cache, ttl, log)  // cached inbound list
//
// MemoryProvisioner keeps accounts in process for local runs and tests.
package provisioning
