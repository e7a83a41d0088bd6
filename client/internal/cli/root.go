// Package cli implements the etcb command line client for the etcbridged
// gateway: single calculations, the two solve operations, magnitude sweeps
// and instrument lookups.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagAPIKey string
	flagJSON   bool
)

// rootCmd is the etcb entry point.
var rootCmd = &cobra.Command{
	Use:   "etcb",
	Short: "Exposure-time calculator bridge client",
	Long: `etcb talks to an etcbridged gateway to run exposure-time
calculations and their inversions: the faintest magnitude or the fewest
exposures that reach a signal-to-noise target.

The gateway address comes from --server, the ETCB_SERVER environment
variable, or a local .env file, in that order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	// A local .env is a convenience for development setups; absence is fine.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "gateway base URL (default $ETCB_SERVER or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "gateway API key (default $ETCB_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(instrumentsCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(defaultsCmd)
	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "etcb:", err)
		return 1
	}
	return 0
}

// gateway builds the API client from flags and environment.
func gateway() *Client {
	server := flagServer
	if server == "" {
		server = os.Getenv("ETCB_SERVER")
	}
	if server == "" {
		server = "http://localhost:8080"
	}
	key := flagAPIKey
	if key == "" {
		key = os.Getenv("ETCB_API_KEY")
	}
	return NewClient(strings.TrimRight(server, "/"), key)
}

// parseOverrides turns repeated --set key=value flags into the override map
// the gateway merges over the instrument defaults. Values that parse as
// numbers are sent as numbers so integer parameters stay integers.
func parseOverrides(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad --set %q: want key=value", s)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			out[key] = n
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
			continue
		}
		out[key] = value
	}
	return out, nil
}
