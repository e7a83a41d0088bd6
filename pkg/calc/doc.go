// Package calc implements the three bridge operations over an engine:
// computing a signal-to-noise ratio for a fixed configuration, and the two
// inversions (faintest magnitude, fewest exposures) that meet an S/N target.
// All numbers come from the engine; calc only merges parameters, drives the
// solver and carries results through.
package calc
