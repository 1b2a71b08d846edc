package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/speech"

	"github.com/spf13/cobra"
)

var (
	analyzeCustomer   string
	analyzeType       string
	analyzeModalities string
	analyzeDays       int
	analyzeAudioDir   string

	batchCustomers string
	batchType      string

	pipelineCustomer string
	pipelineTypes    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one customer",
	Long: `Collect the customer's records, fuse them and run one analysis strategy.
Supported types are high_value_identification, behavior_pattern_analysis,
sentiment_analysis and engagement_analysis.`,
	RunE: runAnalyze,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze several customers concurrently",
	RunE:  runBatch,
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run several analysis types for one customer in sequence",
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(analyzeCmd, batchCmd, pipelineCmd)

	analyzeCmd.Flags().StringVarP(&analyzeCustomer, "customer", "c", "", "Customer ID to analyze")
	analyzeCmd.Flags().StringVarP(&analyzeType, "type", "t", multimodal.AnalysisHighValue, "Analysis type")
	analyzeCmd.Flags().StringVarP(&analyzeModalities, "modalities", "m", "", "Comma-separated modalities (default: all)")
	analyzeCmd.Flags().IntVarP(&analyzeDays, "days", "d", 0, "Look back this many days (default: DEFAULT_LOOKBACK)")
	analyzeCmd.Flags().StringVar(&analyzeAudioDir, "audio", "", "Directory of call recordings to transcribe as the voice modality")
	_ = analyzeCmd.MarkFlagRequired("customer")

	batchCmd.Flags().StringVar(&batchCustomers, "customers", "", "Comma-separated customer IDs")
	batchCmd.Flags().StringVarP(&batchType, "type", "t", multimodal.AnalysisHighValue, "Analysis type")
	_ = batchCmd.MarkFlagRequired("customers")

	pipelineCmd.Flags().StringVarP(&pipelineCustomer, "customer", "c", "", "Customer ID to analyze")
	pipelineCmd.Flags().StringVar(&pipelineTypes, "types", strings.Join([]string{
		multimodal.AnalysisHighValue,
		multimodal.AnalysisBehaviorPattern,
		multimodal.AnalysisSentiment,
		multimodal.AnalysisEngagement,
	}, ","), "Comma-separated analysis types")
	_ = pipelineCmd.MarkFlagRequired("customer")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	modalities, err := multimodal.ParseModalities(analyzeModalities)
	if err != nil {
		return err
	}

	env, err := newEnvironment(appConfig)
	if err != nil {
		return err
	}
	defer env.Close()

	if analyzeAudioDir != "" {
		store, err := loadClips(analyzeAudioDir, analyzeCustomer)
		if err != nil {
			return err
		}
		env.sources.Voice = speech.NewCollector(store, speech.NewEngine(logger, time.Now), logger)
	}

	req := multimodal.AnalysisRequest{
		CustomerID:   analyzeCustomer,
		AnalysisType: analyzeType,
		Modalities:   modalities,
	}
	if analyzeDays > 0 {
		req.TimeRange = multimodal.LastDays(time.Now(), analyzeDays)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := env.orchestrator(appConfig).Analyze(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ids := splitList(batchCustomers)
	if len(ids) == 0 {
		return fmt.Errorf("no customer IDs given")
	}

	env, err := newEnvironment(appConfig)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	results := env.orchestrator(appConfig).BatchAnalyze(ctx, ids, batchType)
	logger.WithField("requested", len(ids)).WithField("succeeded", len(results)).Info("Batch analysis finished")
	return printJSON(cmd.OutOrStdout(), results)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment(appConfig)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	results := env.orchestrator(appConfig).RunPipeline(ctx, pipelineCustomer, multimodal.AllModalities(), splitList(pipelineTypes))
	return printJSON(cmd.OutOrStdout(), results)
}

// loadClips reads every supported recording in dir as a clip of customerID,
// dated by its modification time.
func loadClips(dir, customerID string) (*speech.MemoryClipStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio directory: %w", err)
	}

	store := speech.NewMemoryClipStore()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		if !speech.IsSupportedFormat(format) {
			logger.WithField("file", entry.Name()).Debug("Skipping unsupported audio file")
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		store.Add(speech.Clip{
			ID:         entry.Name(),
			CustomerID: customerID,
			Format:     format,
			Data:       data,
			RecordedAt: info.ModTime(),
		})
	}
	return store, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
