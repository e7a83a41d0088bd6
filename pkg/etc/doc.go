// Package etc holds the domain types shared by the etcbridge gateway and the
// etcb CLI: exposure-time-calculator parameter sets, engine results, and the
// built-in instrument tables used when no reference-data directory is
// configured.
package etc
