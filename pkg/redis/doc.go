// Package redis connects to the optional Redis instance that backs the
// shared tier of pkg/cache. Connect retries until the server answers and
// Healthcheck adapts a client to the readiness probe signature used by
// pkg/httpserver.
package redis
