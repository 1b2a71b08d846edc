package orchestrator

import (
	"testing"

	"crm-value-server/pkg/fusion"
	"crm-value-server/pkg/multimodal"

	"github.com/stretchr/testify/assert"
)

func fusedWith(value, quality float64) *multimodal.FusionResult {
	r := &multimodal.FusionResult{
		FusionQuality:        quality,
		ConfidenceByModality: map[multimodal.Modality]float64{},
		Insights:             []string{},
		Anomalies:            []string{},
	}
	for i := range r.FusedFeatures {
		r.FusedFeatures[i] = value
	}
	return r
}

func TestValueLevel(t *testing.T) {
	assert.Equal(t, "very_high", ValueLevel(0.8))
	assert.Equal(t, "high", ValueLevel(0.6))
	assert.Equal(t, "medium", ValueLevel(0.4))
	assert.Equal(t, "low", ValueLevel(0.39))
}

func TestHighValueAnalysis(t *testing.T) {
	fused := fusedWith(0.9, 0.95)
	fused.InputModalities = []multimodal.Modality{multimodal.ModalityText, multimodal.ModalityVoice, multimodal.ModalityBehavior}
	fused.ConfidenceByModality[multimodal.ModalityBehavior] = 0.8
	fused.ConfidenceByModality[multimodal.ModalityVoice] = 0.6
	fused.Anomalies = []string{fusion.AnomalyLowAudioQuality}

	res, ok := dispatch(multimodal.AnalysisHighValue, fused)
	assert.True(t, ok)

	assert.InDelta(t, 0.855, res["value_score"].(float64), 1e-9)
	assert.Equal(t, "very_high", res["value_level"])
	assert.Equal(t, 0.75, res["data_completeness"])
	assert.Equal(t, []string{"Strong digital engagement", "Active across multiple channels"}, res["contributing_factors"])
	assert.Equal(t, []string{fusion.AnomalyLowAudioQuality}, res["risk_indicators"])
}

func TestBehaviorPatternConsistencyFloorsAtZero(t *testing.T) {
	fused := fusedWith(0.5, 0.5)
	fused.Anomalies = []string{"a", "b"}
	res, _ := dispatch(multimodal.AnalysisBehaviorPattern, fused)
	assert.InDelta(t, 0.6, res["consistency_score"].(float64), 1e-9)

	fused.Anomalies = []string{"a", "b", "c", "d", "e", "f"}
	res, _ = dispatch(multimodal.AnalysisBehaviorPattern, fused)
	assert.Equal(t, 0.0, res["consistency_score"])
}

func TestSentimentAnalysis(t *testing.T) {
	fused := fusedWith(0.5, 0.7)
	fused.Insights = []string{fusion.InsightClearVoice, fusion.InsightNegativeText}

	res, _ := dispatch(multimodal.AnalysisSentiment, fused)
	assert.Equal(t, "negative", res["overall_sentiment"])
	assert.Equal(t, []string{fusion.InsightNegativeText}, res["sentiment_indicators"])
	assert.Equal(t, true, res["sentiment_consistency"])
	assert.Equal(t, 0.7, res["confidence"])

	res, _ = dispatch(multimodal.AnalysisSentiment, fusedWith(0.5, 0.7))
	assert.Equal(t, "neutral", res["overall_sentiment"])
}

func TestEngagementAnalysis(t *testing.T) {
	fused := fusedWith(0.75, 0.7)
	fused.Insights = []string{fusion.InsightHighEngagement, fusion.InsightPositiveText, fusion.InsightConversion}

	res, _ := dispatch(multimodal.AnalysisEngagement, fused)
	assert.InDelta(t, 0.75, res["engagement_score"].(float64), 1e-9)
	assert.Equal(t, []string{fusion.InsightHighEngagement, fusion.InsightConversion}, res["engagement_indicators"])
	assert.Equal(t, []string{"Maintain the current engagement level"}, res["recommendations"])

	res, _ = dispatch(multimodal.AnalysisEngagement, fusedWith(0.3, 0.7))
	assert.Equal(t, []string{"Increase customer engagement"}, res["recommendations"])
}

func TestUnsupportedDispatch(t *testing.T) {
	res, ok := dispatch("lifetime_value", fusedWith(0.5, 0.5))
	assert.False(t, ok)
	assert.Equal(t, map[string]interface{}{"error": "unsupported analysis type"}, res)
	assert.Equal(t, "unsupported", metricsType("lifetime_value"))
}

func TestRecommendationsMergeAndDedupe(t *testing.T) {
	fused := fusedWith(0.5, 0.5)
	fused.Insights = []string{fusion.InsightPositiveText, fusion.InsightHighValue, fusion.InsightClearVoice}
	fused.Anomalies = []string{fusion.AnomalyLowAudioQuality, fusion.AnomalyFeatureOutlier}
	profile := &multimodal.CustomerValueProfile{
		RecommendedActions: []string{"Schedule a detailed product demo", "Send a renewal offer"},
	}

	got := recommendations(map[string]interface{}{"value_level": "high"}, fused, profile)

	assert.Equal(t, []string{
		"Assign an experienced sales representative",
		"Schedule a detailed product demo",
		"Provide an ROI analysis report",
		"Leverage the customer's positive attitude to accelerate the deal",
		"Prioritize resources and focus on this customer",
		"Improve call conditions to ensure communication quality",
		"Send a renewal offer",
	}, got)

	assert.Empty(t, recommendations(map[string]interface{}{"error": errUnsupportedAnalysis}, fusedWith(0, 0), nil))
}
