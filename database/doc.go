// Package database provides pooled connection lifecycle management,
// configuration loading, error classification, logging, health checks,
// and query instrumentation built on top of Bun.
package database
