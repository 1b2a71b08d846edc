package main

import (
	"context"
	"fmt"
	"time"

	"crm-value-server/pkg/collector"
	"crm-value-server/pkg/highvalue"
	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	identifyFile   string
	identifyWindow time.Duration

	distributionFile   string
	distributionWindow time.Duration
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "List high-value customers, best first",
	Long: `Profile every known customer from their sessions and voice insights and
print those scoring at least HIGH_VALUE_MIN_SCORE. Customers come from --file,
or from the configured file or Redis source when --file is omitted.`,
	RunE: runIdentify,
}

var distributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Summarise value tiers over all profiled customers",
	RunE:  runDistribution,
}

func init() {
	rootCmd.AddCommand(identifyCmd, distributionCmd)

	identifyCmd.Flags().StringVarP(&identifyFile, "file", "f", "", "JSON fixture with customers and records")
	identifyCmd.Flags().DurationVarP(&identifyWindow, "window", "w", 30*24*time.Hour, "Only sessions newer than this count")

	distributionCmd.Flags().StringVarP(&distributionFile, "file", "f", "", "JSON fixture with customers and records")
	distributionCmd.Flags().DurationVarP(&distributionWindow, "window", "w", 30*24*time.Hour, "Only sessions newer than this count")
}

// population is everything the high-value service needs for a bulk run.
type population struct {
	customers []multimodal.Customer
	sessions  []multimodal.BehaviorSession
	voice     []multimodal.VoiceInsight
}

func loadPopulation(ctx context.Context, file string, window time.Duration) (*population, error) {
	if file != "" {
		src, err := collector.LoadFile(file)
		if err != nil {
			return nil, err
		}
		customers, _ := src.ListCustomers(ctx)
		sessions, voice := src.All()
		return &population{customers: customers, sessions: sessions, voice: voice}, nil
	}

	env, err := newEnvironment(appConfig)
	if err != nil {
		return nil, err
	}
	defer env.Close()

	if env.lister == nil {
		return nil, fmt.Errorf("collector source %q cannot enumerate customers, use --file", appConfig.Collector.Source)
	}
	customers, err := env.lister.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	tr := multimodal.TimeRange{End: time.Now()}
	if window > 0 {
		tr.Start = tr.End.Add(-window)
	}

	pop := &population{customers: customers}
	for _, c := range customers {
		for _, m := range []multimodal.Modality{multimodal.ModalityBehavior, multimodal.ModalityVoice} {
			res := env.sources.Collect(ctx, c.ID, m, tr)
			if res.Err != nil {
				logger.WithError(res.Err).WithFields(logrus.Fields{
					"customer_id": c.ID,
					"modality":    m,
				}).Warn("Skipping modality for customer")
				continue
			}
			pop.sessions = append(pop.sessions, res.Records.Behavior...)
			pop.voice = append(pop.voice, res.Records.Voice...)
		}
	}
	return pop, nil
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	pop, err := loadPopulation(ctx, identifyFile, identifyWindow)
	if err != nil {
		return err
	}

	svc := highvalue.NewService(logger, appConfig.Scoring)
	return printJSON(cmd.OutOrStdout(), svc.IdentifyHighValueCustomers(pop.customers, pop.sessions, pop.voice, identifyWindow))
}

func runDistribution(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	pop, err := loadPopulation(ctx, distributionFile, distributionWindow)
	if err != nil {
		return err
	}

	svc := highvalue.NewService(logger, appConfig.Scoring)
	return printJSON(cmd.OutOrStdout(), svc.GetValueDistribution(svc.ProfileAll(pop.customers, pop.sessions, pop.voice, distributionWindow)))
}
