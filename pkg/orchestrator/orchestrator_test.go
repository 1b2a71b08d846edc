package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"crm-value-server/pkg/collector"
	"crm-value-server/pkg/config"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/fusion"
	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 5, 18, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newTestOrchestrator(sources collector.Sources, opts ...Option) *Orchestrator {
	base := []Option{
		WithClock(clock),
		WithRequestIDs(func() string { return "req-test" }),
	}
	return New(logrus.New(), config.DefaultScoring(), sources, append(base, opts...)...)
}

func demoSources() collector.Sources {
	return collector.FromSource(collector.NewDemoSource(clock))
}

type failingVoice struct{}

func (failingVoice) CollectVoice(context.Context, string, multimodal.TimeRange) ([]multimodal.VoiceInsight, error) {
	return nil, fmt.Errorf("speech backend unreachable")
}

type panickingBehavior struct{}

func (panickingBehavior) CollectBehavior(context.Context, string, multimodal.TimeRange) ([]multimodal.BehaviorSession, error) {
	panic("nil session store")
}

// failFor aborts fusion for one customer.
type failFor struct{ customerID string }

func (f failFor) Name() string { return "fail_for" }

func (f failFor) Process(_ context.Context, s *fusion.State) error {
	if s.CustomerID == f.customerID {
		return fmt.Errorf("corrupted feature vector")
	}
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []*multimodal.AnalysisResult
	err     error
}

func (s *recordingSink) PublishResult(_ context.Context, r *multimodal.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func assertUnit(t *testing.T, v float64, name string) {
	t.Helper()
	assert.GreaterOrEqual(t, v, 0.0, name)
	assert.LessOrEqual(t, v, 1.0, name)
}

func TestAnalyzeAllStrategiesWithDemoData(t *testing.T) {
	o := newTestOrchestrator(demoSources())

	for _, analysisType := range []string{
		multimodal.AnalysisHighValue,
		multimodal.AnalysisBehaviorPattern,
		multimodal.AnalysisSentiment,
		multimodal.AnalysisEngagement,
	} {
		t.Run(analysisType, func(t *testing.T) {
			res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
				CustomerID:   "acme",
				AnalysisType: analysisType,
			})
			require.NoError(t, err)

			assert.Equal(t, "req-test", res.RequestID)
			assert.Equal(t, "acme", res.CustomerID)
			assert.Equal(t, fixedNow, res.CreatedAt)
			require.NotNil(t, res.Fusion)
			assert.Len(t, res.Fusion.FusedFeatures, multimodal.FusedDimension)
			assert.Len(t, res.Fusion.InputModalities, 4)
			assert.Equal(t, res.Fusion.FusionQuality, res.Confidence)
			assertUnit(t, res.Confidence, "confidence")
			assert.NotContains(t, res.Results, "error")
			assert.GreaterOrEqual(t, res.ProcessingTime, 0.0)

			seen := make(map[string]bool)
			for _, r := range res.Recommendations {
				assert.False(t, seen[r], "duplicate recommendation %q", r)
				seen[r] = true
			}
		})
	}
}

func TestAnalyzeHighValueAttachesProfile(t *testing.T) {
	dir := collector.NewMemorySource()
	dir.PutCustomer(multimodal.Customer{
		ID:          "acme",
		Size:        "enterprise",
		Industry:    "Technology",
		Status:      "customer",
		City:        "Shanghai",
		FoundedYear: fixedNow.Year() - 10,
	})
	o := newTestOrchestrator(demoSources(), WithDirectory(dir))

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisHighValue,
		Modalities:   []multimodal.Modality{multimodal.ModalityText, multimodal.ModalityInteraction},
	})
	require.NoError(t, err)

	require.NotNil(t, res.HighValueProfile)
	assert.Equal(t, "acme", res.HighValueProfile.CustomerID)
	assert.InDelta(t, 1.435/1.54, res.HighValueProfile.OverallScore, 1e-9)
	for _, action := range res.HighValueProfile.RecommendedActions {
		assert.Contains(t, res.Recommendations, action)
	}

	assert.Equal(t, 0.5, res.Results["data_completeness"])
	level := res.Results["value_level"].(string)
	assert.Contains(t, []string{"very_high", "high", "medium", "low"}, level)
	if actions, ok := valueLevelActions[level]; ok {
		assert.Equal(t, actions, res.Recommendations[:len(actions)])
	}
}

func TestAnalyzeOtherTypesHaveNoProfile(t *testing.T) {
	o := newTestOrchestrator(demoSources())

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisSentiment,
	})
	require.NoError(t, err)
	assert.Nil(t, res.HighValueProfile)
	assert.Equal(t, "positive", res.Results["overall_sentiment"])
}

func TestAnalyzeUnsupportedType(t *testing.T) {
	o := newTestOrchestrator(demoSources())

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: "churn_prediction",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"error": "unsupported analysis type"}, res.Results)
	assert.Zero(t, res.Confidence)
	assert.Nil(t, res.HighValueProfile)
	assert.Greater(t, res.Fusion.FusionQuality, 0.0)
}

func TestAnalyzeRequiresCustomerID(t *testing.T) {
	_, err := newTestOrchestrator(demoSources()).Analyze(context.Background(), multimodal.AnalysisRequest{
		AnalysisType: multimodal.AnalysisEngagement,
	})
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))
}

func TestAnalyzeDegradesFailedCollectors(t *testing.T) {
	demo := collector.NewDemoSource(clock)
	o := newTestOrchestrator(collector.Sources{
		Text:        demo,
		Voice:       failingVoice{},
		Behavior:    panickingBehavior{},
		Interaction: demo,
	})

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisEngagement,
	})
	require.NoError(t, err)

	assert.Equal(t, []multimodal.Modality{multimodal.ModalityText, multimodal.ModalityInteraction}, res.Fusion.InputModalities)
	assert.NotContains(t, res.Fusion.ConfidenceByModality, multimodal.ModalityVoice)
	assertUnit(t, res.Confidence, "confidence")
}

func TestAnalyzeWithoutAnyData(t *testing.T) {
	o := newTestOrchestrator(collector.FromSource(collector.NewMemorySource()))

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "ghost",
		AnalysisType: multimodal.AnalysisHighValue,
	})
	require.NoError(t, err)

	assert.Equal(t, [multimodal.FusedDimension]float64{}, res.Fusion.FusedFeatures)
	assert.Equal(t, 0.0, res.Results["value_score"])
	assert.Equal(t, "low", res.Results["value_level"])
	assert.Equal(t, 0.0, res.Results["data_completeness"])
}

func TestAnalyzeRespectsTimeRange(t *testing.T) {
	o := newTestOrchestrator(demoSources())

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisEngagement,
		TimeRange:    multimodal.TimeRange{Start: fixedNow.Add(-7 * time.Hour), End: fixedNow},
	})
	require.NoError(t, err)

	// only the latest session and phone call fall in range
	assert.Equal(t, []multimodal.Modality{multimodal.ModalityBehavior, multimodal.ModalityInteraction}, res.Fusion.InputModalities)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	o := newTestOrchestrator(demoSources())
	req := multimodal.AnalysisRequest{CustomerID: "acme", AnalysisType: multimodal.AnalysisHighValue}

	first, err := o.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Fusion, second.Fusion)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.HighValueProfile, second.HighValueProfile)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

type countingBehavior struct {
	collector.BehaviorCollector
	mu    sync.Mutex
	calls int
}

func (c *countingBehavior) CollectBehavior(ctx context.Context, id string, tr multimodal.TimeRange) ([]multimodal.BehaviorSession, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.BehaviorCollector.CollectBehavior(ctx, id, tr)
}

func TestAnalyzeCollectsRepeatedModalityOnce(t *testing.T) {
	sources := demoSources()
	counter := &countingBehavior{BehaviorCollector: sources.Behavior}
	sources.Behavior = counter
	o := newTestOrchestrator(sources)

	once, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisBehaviorPattern,
		Modalities:   []multimodal.Modality{multimodal.ModalityBehavior},
	})
	require.NoError(t, err)
	require.Equal(t, 1, counter.calls)

	twice, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisBehaviorPattern,
		Modalities:   []multimodal.Modality{multimodal.ModalityBehavior, multimodal.ModalityBehavior},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, counter.calls)
	assert.Equal(t, []multimodal.Modality{multimodal.ModalityBehavior}, twice.Fusion.InputModalities)
	assert.Equal(t, once.Fusion.FusedFeatures, twice.Fusion.FusedFeatures)
	assert.Equal(t, once.Results, twice.Results)
}

func TestAnalyzeFatalFusionFailure(t *testing.T) {
	stages := append(fusion.DefaultStages(config.DefaultScoring()), failFor{customerID: "broken"})
	o := newTestOrchestrator(demoSources(), WithFusionOptions(fusion.WithStages(stages...)))

	_, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "broken",
		AnalysisType: multimodal.AnalysisEngagement,
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrFatal))
	assert.Equal(t, errors.CodeFatal, errors.GetErrorCode(err))
}

func TestBatchAnalyzeOmitsFailedCustomers(t *testing.T) {
	stages := append(fusion.DefaultStages(config.DefaultScoring()), failFor{customerID: "c2"})
	o := newTestOrchestrator(demoSources(),
		WithFusionOptions(fusion.WithStages(stages...)),
		WithBatchConcurrency(2),
	)

	results := o.BatchAnalyze(context.Background(), []string{"c1", "c2", "c3", "c4", "c1"}, multimodal.AnalysisHighValue)

	require.Len(t, results, 3)
	assert.NotContains(t, results, "c2")
	for _, id := range []string{"c1", "c3", "c4"} {
		require.Contains(t, results, id)
		assert.Equal(t, id, results[id].CustomerID)
	}
}

func TestBatchAnalyzeSurvivesCollectorFailures(t *testing.T) {
	demo := collector.NewDemoSource(clock)
	o := newTestOrchestrator(collector.Sources{Text: demo, Voice: failingVoice{}, Behavior: demo})

	results := o.BatchAnalyze(context.Background(), []string{"a", "b"}, multimodal.AnalysisEngagement)
	assert.Len(t, results, 2)
}

func TestRunPipeline(t *testing.T) {
	o := newTestOrchestrator(demoSources())

	results := o.RunPipeline(context.Background(), "acme", nil, []string{
		multimodal.AnalysisEngagement,
		"unknown",
		multimodal.AnalysisSentiment,
	})

	require.Len(t, results, 3)
	assert.Equal(t, multimodal.AnalysisEngagement, results[0].AnalysisType)
	assert.Zero(t, results[1].Confidence)
	assert.Equal(t, multimodal.AnalysisSentiment, results[2].AnalysisType)
}

func TestRunPipelineSkipsFailures(t *testing.T) {
	stages := append(fusion.DefaultStages(config.DefaultScoring()), failFor{customerID: "acme"})
	o := newTestOrchestrator(demoSources(), WithFusionOptions(fusion.WithStages(stages...)))

	results := o.RunPipeline(context.Background(), "acme", multimodal.AllModalities(), []string{multimodal.AnalysisEngagement})
	assert.Empty(t, results)
}

func TestSinkReceivesResults(t *testing.T) {
	sink := &recordingSink{err: fmt.Errorf("broker down")}
	o := newTestOrchestrator(demoSources(), WithSink(sink))

	res, err := o.Analyze(context.Background(), multimodal.AnalysisRequest{
		CustomerID:   "acme",
		AnalysisType: multimodal.AnalysisEngagement,
	})
	require.NoError(t, err, "publish failures do not fail the analysis")

	require.Len(t, sink.results, 1)
	assert.Same(t, res, sink.results[0])
}
