package main

import (
	"context"

	"crm-value-server/pkg/collector"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.json>",
	Short: "Load a JSON fixture into the Redis record store",
	Long: `seed writes the customers and raw records of a fixture file into the Redis
store configured by REDIS_*. Records are appended, so seeding the same file
twice duplicates them.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedSummary struct {
	Fixture   string `json:"fixture"`
	Customers int    `json:"customers"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	fx, err := collector.ReadFixture(args[0])
	if err != nil {
		return err
	}

	src, err := collector.NewRedisSource(appConfig.Redis, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	n, err := src.Seed(ctx, fx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), seedSummary{Fixture: args[0], Customers: n})
}
