// Package jobs holds the recurring background work of the service:
// subscription notifications, retention cleanup, health monitoring and
// scheduled backups.
//
// Every job implements scheduler.Job and is registered by Register with the
// intervals and backoffs from Config. A job iteration never changes wallet
// balances.
package jobs
