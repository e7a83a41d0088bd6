// Package api is the HTTP surface of the gateway: the calculation and solve
// endpoints, instrument lookups, sweep job management, run history,
// diagnostics and the Prometheus metrics exposition.
package api
