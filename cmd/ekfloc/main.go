package main

import (
	"context"

	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(NewCmd().ExecuteContext(context.Background()))
}

// NewCmd returns ekfloc root command.
func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "ekfloc [command] [flags]",
		Short:         "ekfloc estimates planar robot pose from odometry and landmark measurements",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "`<Config>` path to YAML filter configuration")

	runCmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run the filter over a dataset",
		Args:  cobra.NoArgs,
		RunE:  doRun,
	}
	runCmd.Flags().StringP("data", "d", "", "`<Dataset>` path to YAML or JSON dataset")
	runCmd.Flags().String("csv", "", "`<File>` path to write filtered trajectory CSV")
	runCmd.Flags().String("plot", "", "`<File>` path to write trajectory plot image")
	runCmd.Flags().Bool("smooth", false, "run smoothing pass over the filtered trajectory")
	runCmd.MarkFlagRequired("data")

	simCmd := &cobra.Command{
		Use:   "simulate [flags]",
		Short: "Generate a synthetic dataset",
		Args:  cobra.NoArgs,
		RunE:  doSimulate,
	}
	simCmd.Flags().StringP("out", "o", "", "`<File>` path to write the dataset")
	simCmd.Flags().Int("steps", 500, "number of simulated steps")
	simCmd.Flags().Float64("dt", 0.1, "simulation time step [s]")
	simCmd.Flags().Float64("v", 1, "commanded translational velocity [m/s]")
	simCmd.Flags().Float64("omega", 0.1, "commanded angular velocity [rad/s]")
	simCmd.Flags().Float64("offset", 0, "sensor offset from robot center [m]")
	simCmd.Flags().Float64("max-range", 0, "sensing range, 0 means unlimited [m]")
	simCmd.Flags().Uint64("seed", 1, "noise seed, 0 seeds from wall clock")
	simCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(
		runCmd,
		simCmd,
	)
	return rootCmd
}
