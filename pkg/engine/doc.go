// Package engine defines the contract with the external exposure-time-
// calculator service and provides the HTTP client used to call it.
//
// The engine owns all instrument physics and all parameter validation; the
// bridge only packages requests and surfaces the engine's answers, including
// its validation errors and warnings, unmodified.
package engine
