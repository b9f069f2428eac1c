// Package redlock implements a client-side distributed lock manager over a
// set of independent Redis-compatible servers, following the Redlock
// algorithm: a lock is held only while a quorum of servers agree on its
// token, and validity is bounded by clock drift and network latency rather
// than by any single server's availability.
package redlock
