package main

import (
	"time"

	"crm-value-server/pkg/behavior"
	"crm-value-server/pkg/multimodal"

	"github.com/spf13/cobra"
)

var (
	behaviorCustomer string
	behaviorWindow   time.Duration
)

var behaviorCmd = &cobra.Command{
	Use:   "behavior",
	Short: "Analyze one customer's website sessions",
	RunE:  runBehavior,
}

func init() {
	rootCmd.AddCommand(behaviorCmd)

	behaviorCmd.Flags().StringVarP(&behaviorCustomer, "customer", "c", "", "Customer ID to analyze")
	behaviorCmd.Flags().DurationVarP(&behaviorWindow, "window", "w", 0, "Only sessions newer than this count (default: all)")
	_ = behaviorCmd.MarkFlagRequired("customer")
}

func runBehavior(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment(appConfig)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res := env.sources.Collect(ctx, behaviorCustomer, multimodal.ModalityBehavior, multimodal.TimeRange{})
	if res.Err != nil {
		return res.Err
	}

	engine := behavior.NewEngine(logger, appConfig.Scoring)
	return printJSON(cmd.OutOrStdout(), engine.Analyze(behaviorCustomer, res.Records.Behavior, behaviorWindow))
}
