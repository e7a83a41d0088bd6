// Package solve inverts expensive monotone black-box functions.
//
// The bridge uses it to answer "what is the faintest source magnitude that
// still reaches this signal-to-noise?" and "how many exposures do I need?"
// where every function evaluation is one round-trip to the external
// exposure-time-calculator engine. Both solvers therefore bracket first and
// bisect second, and enforce a hard budget on evaluations.
package solve
