package fusion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crm-value-server/pkg/config"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/preprocess"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 5, 18, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewEngine(logrus.New(), config.DefaultScoring(), opts...)
}

func point(m multimodal.Modality, quality float64, vec []float64, processed map[string]float64) multimodal.DataPoint {
	return multimodal.DataPoint{
		ID:            fmt.Sprintf("%s-%v", m, quality),
		CustomerID:    "c-1",
		Modality:      m,
		FeatureVector: vec,
		QualityScore:  quality,
		Processed:     processed,
		Timestamp:     now,
	}
}

func fullPoints() map[multimodal.Modality][]multimodal.DataPoint {
	return map[multimodal.Modality][]multimodal.DataPoint{
		multimodal.ModalityText: {
			point(multimodal.ModalityText, 0.9, []float64{0.1, 0.05, 0.1, 0, 0.02}, map[string]float64{"sentiment": 1}),
		},
		multimodal.ModalityVoice: {
			point(multimodal.ModalityVoice, 0.92, []float64{0.92, 0.75, 0.1, 1, 0.3, 0.85, 1}, map[string]float64{"has_intent": 1}),
		},
		multimodal.ModalityBehavior: {
			point(multimodal.ModalityBehavior, 0.82, []float64{0.82, 0.25, 0.1, 0.5, 0.2, 0.7, 0.3}, map[string]float64{"engagement_score": 0.82, "conversion_count": 1, "page_views_count": 5}),
			point(multimodal.ModalityBehavior, 0.75, []float64{0.75, 0.15, 0.06, 0.3, 0, 0.6, 0.2}, map[string]float64{"engagement_score": 0.75, "page_views_count": 3}),
		},
		multimodal.ModalityInteraction: {
			point(multimodal.ModalityInteraction, 0.8, []float64{0.8, 1, 1, 0.5}, nil),
		},
	}
}

func TestFuseAlwaysTenDimensions(t *testing.T) {
	e := newTestEngine()
	all := fullPoints()

	for n := 0; n <= len(multimodal.AllModalities()); n++ {
		points := map[multimodal.Modality][]multimodal.DataPoint{}
		for _, m := range multimodal.AllModalities()[:n] {
			points[m] = all[m]
		}

		result, err := e.Fuse(context.Background(), "c-1", points)
		require.NoError(t, err)

		assert.Len(t, result.FusedFeatures, multimodal.FusedDimension)
		assert.Len(t, result.InputModalities, n)
		assert.GreaterOrEqual(t, result.FusionQuality, 0.0)
		assert.LessOrEqual(t, result.FusionQuality, 1.0)
	}
}

func TestFuseWithoutPoints(t *testing.T) {
	result, err := newTestEngine().Fuse(context.Background(), "c-1", nil)
	require.NoError(t, err)

	assert.Equal(t, [multimodal.FusedDimension]float64{}, result.FusedFeatures)
	assert.Empty(t, result.InputModalities)
	assert.InDelta(t, 0.16, result.FusionQuality, 1e-9)
	assert.Empty(t, result.Insights)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, now, result.Timestamp)
	assert.Equal(t, "c-1", result.CustomerID)
}

func TestFuseWeightsByConfidence(t *testing.T) {
	points := map[multimodal.Modality][]multimodal.DataPoint{
		multimodal.ModalityText:     {point(multimodal.ModalityText, 1, []float64{1}, nil)},
		multimodal.ModalityBehavior: {point(multimodal.ModalityBehavior, 0.5, []float64{0, 1}, nil)},
	}

	result, err := newTestEngine().Fuse(context.Background(), "c-1", points)
	require.NoError(t, err)

	textWeight := 0.30 / (0.30 + 0.35*0.5)
	assert.InDelta(t, textWeight, result.FusedFeatures[0], 1e-9)
	assert.InDelta(t, 1-textWeight, result.FusedFeatures[1], 1e-9)
	assert.Equal(t, []multimodal.Modality{multimodal.ModalityText, multimodal.ModalityBehavior}, result.InputModalities)
	assert.Equal(t, 0.5, result.ConfidenceByModality[multimodal.ModalityBehavior])
	assert.InDelta(t, 0.4*0.5+0.4*0.75+0.2*0.8, result.FusionQuality, 1e-9)
}

func TestWeightsNormalize(t *testing.T) {
	base := config.DefaultScoring().Fusion
	modalities := multimodal.AllModalities()

	w := Weights(base, modalities, map[multimodal.Modality]float64{
		multimodal.ModalityText: 0.9, multimodal.ModalityVoice: 0.4,
		multimodal.ModalityBehavior: 0.7, multimodal.ModalityInteraction: 1,
	})
	var sum float64
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	fallback := Weights(base, []multimodal.Modality{multimodal.ModalityVoice, multimodal.ModalityInteraction}, map[multimodal.Modality]float64{})
	assert.InDelta(t, 0.25/0.35, fallback[multimodal.ModalityVoice], 1e-9)
	assert.InDelta(t, 0.10/0.35, fallback[multimodal.ModalityInteraction], 1e-9)
}

func TestPad(t *testing.T) {
	long := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	short := Pad([]float64{0.5})

	assert.Equal(t, [multimodal.FusedDimension]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Pad(long))
	assert.Equal(t, 0.5, short[0])
	assert.Equal(t, 0.0, short[9])
}

func TestInsights(t *testing.T) {
	result, err := newTestEngine().Fuse(context.Background(), "c-1", fullPoints())
	require.NoError(t, err)

	assert.Contains(t, result.Insights, InsightPositiveText)
	assert.Contains(t, result.Insights, InsightClearVoice)
	assert.Contains(t, result.Insights, InsightVoiceIntent)
	assert.Contains(t, result.Insights, InsightConversion)
	assert.NotContains(t, result.Insights, InsightHighEngagement)
	assert.NotContains(t, result.Insights, InsightNegativeText)
}

func TestAnomalies(t *testing.T) {
	points := map[multimodal.Modality][]multimodal.DataPoint{
		multimodal.ModalityBehavior: {
			point(multimodal.ModalityBehavior, 0.95, []float64{0.95}, map[string]float64{"engagement_score": 0.95, "page_views_count": 60}),
			point(multimodal.ModalityBehavior, 0.1, []float64{0.1}, map[string]float64{"engagement_score": 0.1, "page_views_count": 2}),
		},
		multimodal.ModalityVoice: {
			point(multimodal.ModalityVoice, 0.3, []float64{0.3}, nil),
		},
	}

	result, err := newTestEngine().Fuse(context.Background(), "c-1", points)
	require.NoError(t, err)

	assert.Contains(t, result.Anomalies, AnomalyUnstableEngagement)
	assert.Contains(t, result.Anomalies, AnomalyExcessiveBrowsing)
	assert.Contains(t, result.Anomalies, AnomalyLowAudioQuality)
	assert.Contains(t, result.Anomalies, AnomalyFeatureOutlier)
}

func TestFuseIsDeterministic(t *testing.T) {
	e := newTestEngine()

	first, err := e.Fuse(context.Background(), "c-1", fullPoints())
	require.NoError(t, err)
	second, err := e.Fuse(context.Background(), "c-1", fullPoints())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFuseFromPreprocessedRecordsIsRepeatable(t *testing.T) {
	quality := map[string]float64{}
	timeSpent := map[string]float64{}
	for i, v := range []float64{0.1, 0.73, 0.333, 0.91, 0.057, 0.6180339, 0.4142, 0.2718} {
		quality[fmt.Sprintf("metric_%d", i)] = v
		timeSpent[fmt.Sprintf("/page/%d", i)] = v * 1234.567
	}
	raw := multimodal.RawRecords{
		Voice: []multimodal.VoiceInsight{{
			Confidence:   0.87,
			Sentiment:    multimodal.SentimentPositive,
			SpeakingRate: 131,
			VoiceQuality: quality,
			Timestamp:    now,
		}},
		Behavior: []multimodal.BehaviorSession{{
			SessionID:       "s-1",
			EngagementScore: 0.64,
			TimeSpent:       timeSpent,
			Timestamp:       now,
		}},
	}

	p := preprocess.New(logrus.New(), func() time.Time { return now })
	e := newTestEngine()

	var first *multimodal.FusionResult
	for i := 0; i < 200; i++ {
		result, err := e.Fuse(context.Background(), "c-1", p.Process("c-1", raw))
		require.NoError(t, err)
		if first == nil {
			first = result
			continue
		}
		require.Equal(t, first.FusedFeatures, result.FusedFeatures, "run %d", i)
		require.Equal(t, first.FusionQuality, result.FusionQuality, "run %d", i)
	}
}

type failingStage struct{ panics bool }

func (s failingStage) Name() string { return "failing" }

func (s failingStage) Process(context.Context, *State) error {
	if s.panics {
		panic("index out of range")
	}
	return fmt.Errorf("weights unavailable")
}

func TestStageFailuresAreFatal(t *testing.T) {
	for _, panics := range []bool{false, true} {
		e := newTestEngine(WithStages(NewVectorStage(), failingStage{panics: panics}))

		result, err := e.Fuse(context.Background(), "c-7", fullPoints())

		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, errors.IsErrorType(err, errors.ErrFatal))
		assert.Equal(t, "c-7", errors.GetErrorFields(err)["customer_id"])
	}
}
