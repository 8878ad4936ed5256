// Package api exposes the subscription engine, the service catalog and the
// operator functions over HTTP.
//
// API.Handle returns a chi router with the public /v1 routes, the admin
// routes under /v1/admin (bearer token with failed attempt lockout), the
// /healthz and /readyz probes and the Prometheus /metrics endpoint.
//
// Responses use a JSON envelope: {"data": ...} on success and
// {"error": {"code": ..., "message": ...}} on failure. Error messages come
// from subscription.UserMessage and never carry internal details.
package api
