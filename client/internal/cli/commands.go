package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List the instruments the gateway knows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		instruments, err := gateway().Instruments(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(instruments)
		}
		for _, ins := range instruments {
			fmt.Printf("%-12s %d filters, defaults: %s %s\n",
				ins.Name, len(ins.Filters), ins.Defaults.Filter, etc.FormatMag(ins.Defaults.MagAB))
		}
		return nil
	},
}

var filtersCmd = &cobra.Command{
	Use:   "filters <instrument>",
	Short: "List an instrument's filter set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := gateway().Filters(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(filters)
		}
		sort.Strings(filters)
		fmt.Println(strings.Join(filters, "\n"))
		return nil
	},
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults <instrument>",
	Short: "Show an instrument's default parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := gateway().Defaults(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(defaults)
		}
		printParams(defaults)
		return nil
	},
}

var calcSets []string

var calculateCmd = &cobra.Command{
	Use:   "calculate <instrument>",
	Short: "Compute S/N for one configuration",
	Long: `Compute the signal-to-noise ratio for an instrument configuration.
Defaults come from the gateway's reference tables; override individual
parameters with repeated --set flags:

  etcb calculate nircam --set filter=f200w --set mag_ab=24.5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseOverrides(calcSets)
		if err != nil {
			return err
		}
		resp, err := gateway().Calculate(cmd.Context(), CalculateRequest{
			Instrument: args[0],
			Overrides:  overrides,
		})
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(resp)
		}
		printParams(resp.Params)
		fmt.Println(etc.FormatSNR(resp.Result.SNR))
		printWarnings(resp.Result.Warnings)
		fmt.Printf("(%s)\n", etc.FormatDuration(time.Duration(resp.DurationMS)*time.Millisecond))
		return nil
	},
}

var (
	solveSets   []string
	solveTarget float64
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Invert the calculation for a target S/N",
}

var solveMagCmd = &cobra.Command{
	Use:   "mag <instrument>",
	Short: "Find the faintest magnitude reaching the target S/N",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := runSolve(cmd, args[0], "mag")
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(resp)
		}
		fmt.Printf("faintest source: %s\n", resp.Pretty)
		fmt.Printf("%s after %d engine calls (%s)\n",
			etc.FormatSNR(resp.Result.SNR), resp.Evals,
			etc.FormatDuration(time.Duration(resp.DurationMS)*time.Millisecond))
		printWarnings(resp.Result.Warnings)
		return nil
	},
}

var solveNexpCmd = &cobra.Command{
	Use:   "nexp <instrument>",
	Short: "Find the fewest exposures reaching the target S/N",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := runSolve(cmd, args[0], "nexp")
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(resp)
		}
		fmt.Printf("required: %s\n", resp.Pretty)
		fmt.Printf("%s after %d engine calls (%s)\n",
			etc.FormatSNR(resp.Result.SNR), resp.Evals,
			etc.FormatDuration(time.Duration(resp.DurationMS)*time.Millisecond))
		printWarnings(resp.Result.Warnings)
		return nil
	},
}

func runSolve(cmd *cobra.Command, instrument, kind string) (*SolveResponse, error) {
	overrides, err := parseOverrides(solveSets)
	if err != nil {
		return nil, err
	}
	req := SolveRequest{Instrument: instrument, Overrides: overrides, TargetSNR: solveTarget}
	if kind == "mag" {
		return gateway().SolveMagnitude(cmd.Context(), req)
	}
	return gateway().SolveExposures(cmd.Context(), req)
}

var (
	sweepSets     []string
	sweepFrom     float64
	sweepTo       float64
	sweepStep     float64
	sweepTarget   float64
	sweepWait     bool
	sweepInterval time.Duration
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <instrument>",
	Short: "Run an S/N sweep across a magnitude range",
	Long: `Submit a magnitude sweep to the gateway: the configuration is
evaluated at every grid point between --from and --to. With --snr the
gateway also estimates the limiting magnitude. Use --wait to poll until
the sweep finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseOverrides(sweepSets)
		if err != nil {
			return err
		}

		client := gateway()
		defaults, err := client.Defaults(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		params, err := defaults.Apply(overrides)
		if err != nil {
			return err
		}
		params.Instrument = args[0]

		job, err := client.SubmitSweep(cmd.Context(), SweepSpec{
			Params:    params,
			MagStart:  sweepFrom,
			MagStop:   sweepTo,
			MagStep:   sweepStep,
			TargetSNR: sweepTarget,
		})
		if err != nil {
			return err
		}
		if !sweepWait {
			if flagJSON {
				return printJSON(job)
			}
			fmt.Printf("sweep %s queued: %d points\n", job.ID, job.Total)
			return nil
		}

		for job.Status == "queued" || job.Status == "running" {
			time.Sleep(sweepInterval)
			job, err = client.GetSweep(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "\r%s: %d/%d", job.Status, job.Completed, job.Total)
		}
		fmt.Fprintln(os.Stderr)

		if flagJSON {
			return printJSON(job)
		}
		if job.Status == "failed" {
			return fmt.Errorf("sweep failed: %s", job.Error)
		}
		s := job.Summary
		fmt.Printf("sweep %s done\n", job.ID)
		fmt.Printf("mean %s, median %s, p10 %s, p90 %s\n",
			etc.FormatSNR(s.MeanSNR), etc.FormatSNR(s.MedianSNR),
			etc.FormatSNR(s.P10SNR), etc.FormatSNR(s.P90SNR))
		if s.LimitingMag != 0 {
			fmt.Printf("limiting magnitude at S/N %g: %s\n", sweepTarget, etc.FormatMag(s.LimitingMag))
		}
		return nil
	},
}

func init() {
	calculateCmd.Flags().StringArrayVar(&calcSets, "set", nil, "override a parameter, key=value (repeatable)")

	solveCmd.AddCommand(solveMagCmd, solveNexpCmd)
	for _, c := range []*cobra.Command{solveMagCmd, solveNexpCmd} {
		c.Flags().StringArrayVar(&solveSets, "set", nil, "override a parameter, key=value (repeatable)")
		c.Flags().Float64Var(&solveTarget, "snr", 0, "target signal-to-noise ratio (required)")
		c.MarkFlagRequired("snr") //nolint:errcheck
	}

	sweepCmd.Flags().StringArrayVar(&sweepSets, "set", nil, "override a parameter, key=value (repeatable)")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "start magnitude (required)")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 0, "stop magnitude (required)")
	sweepCmd.Flags().Float64Var(&sweepStep, "step", 0.5, "magnitude grid step")
	sweepCmd.Flags().Float64Var(&sweepTarget, "snr", 0, "target S/N for the limiting-magnitude estimate")
	sweepCmd.Flags().BoolVar(&sweepWait, "wait", false, "poll until the sweep finishes")
	sweepCmd.Flags().DurationVar(&sweepInterval, "interval", 2*time.Second, "poll interval with --wait")
	sweepCmd.MarkFlagRequired("from") //nolint:errcheck
	sweepCmd.MarkFlagRequired("to")   //nolint:errcheck
}

// --- output helpers -----------------------------------------------------------

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printParams(p etc.ParamSet) {
	fmt.Printf("%s / %s  aperture %.2f\"  background %s  groups %d  %s  %s\n",
		p.Instrument, p.Filter, p.ApertureArcsec, p.Background, p.Groups,
		etc.FormatExposures(p.Exposures), etc.FormatMag(p.MagAB))
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}
