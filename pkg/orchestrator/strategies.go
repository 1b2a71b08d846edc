package orchestrator

import (
	"crm-value-server/pkg/behavior"
	"crm-value-server/pkg/fusion"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"
)

const errUnsupportedAnalysis = "unsupported analysis type"

type strategy func(fused *multimodal.FusionResult) map[string]interface{}

var strategies = map[string]strategy{
	multimodal.AnalysisHighValue:       highValueAnalysis,
	multimodal.AnalysisBehaviorPattern: behaviorPatternAnalysis,
	multimodal.AnalysisSentiment:       sentimentAnalysis,
	multimodal.AnalysisEngagement:      engagementAnalysis,
}

func isSupported(analysisType string) bool {
	_, ok := strategies[analysisType]
	return ok
}

// dispatch runs the strategy for analysisType. Unknown types produce an
// error entry and report false.
func dispatch(analysisType string, fused *multimodal.FusionResult) (map[string]interface{}, bool) {
	s, ok := strategies[analysisType]
	if !ok {
		return map[string]interface{}{"error": errUnsupportedAnalysis}, false
	}
	return s(fused), true
}

func meanFused(fused *multimodal.FusionResult) float64 {
	return stats.Mean(fused.FusedFeatures[:])
}

// ValueLevel buckets a fused value score.
func ValueLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "very_high"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

func highValueAnalysis(fused *multimodal.FusionResult) map[string]interface{} {
	score := stats.Unit(meanFused(fused) * fused.FusionQuality)

	return map[string]interface{}{
		"value_score":          score,
		"value_level":          ValueLevel(score),
		"confidence":           fused.FusionQuality,
		"contributing_factors": valueFactors(fused),
		"risk_indicators":      append([]string{}, fused.Anomalies...),
		"data_completeness":    float64(len(fused.InputModalities)) / float64(len(multimodal.AllModalities())),
	}
}

func valueFactors(fused *multimodal.FusionResult) []string {
	factors := []string{}
	if fused.ConfidenceByModality[multimodal.ModalityBehavior] > 0.7 {
		factors = append(factors, "Strong digital engagement")
	}
	if fused.ConfidenceByModality[multimodal.ModalityVoice] > 0.7 {
		factors = append(factors, "Positive voice communication")
	}
	if fused.ConfidenceByModality[multimodal.ModalityText] > 0.7 {
		factors = append(factors, "Positive written communication")
	}
	if len(fused.InputModalities) >= 3 {
		factors = append(factors, "Active across multiple channels")
	}
	return factors
}

func behaviorPatternAnalysis(fused *multimodal.FusionResult) map[string]interface{} {
	return map[string]interface{}{
		"consistency_score":   max(0, 1-0.2*float64(len(fused.Anomalies))),
		"behavioral_insights": append([]string{}, fused.Insights...),
		"anomalies":           append([]string{}, fused.Anomalies...),
	}
}

func sentimentAnalysis(fused *multimodal.FusionResult) map[string]interface{} {
	overall := "neutral"
	indicators := []string{}
	for _, insight := range fused.Insights {
		switch insight {
		case fusion.InsightPositiveText:
			overall = "positive"
			indicators = append(indicators, insight)
		case fusion.InsightNegativeText:
			overall = "negative"
			indicators = append(indicators, insight)
		}
	}

	return map[string]interface{}{
		"overall_sentiment":     overall,
		"sentiment_indicators":  indicators,
		"sentiment_consistency": len(fused.Anomalies) == 0,
		"confidence":            fused.FusionQuality,
	}
}

var engagementInsights = map[string]bool{
	fusion.InsightHighEngagement: true,
	fusion.InsightConversion:     true,
	fusion.InsightModerateIntent: true,
	fusion.InsightVoiceIntent:    true,
}

func engagementAnalysis(fused *multimodal.FusionResult) map[string]interface{} {
	score := meanFused(fused)

	indicators := []string{}
	for _, insight := range fused.Insights {
		if engagementInsights[insight] {
			indicators = append(indicators, insight)
		}
	}

	advice := "Increase customer engagement"
	if score > 0.7 {
		advice = "Maintain the current engagement level"
	}

	return map[string]interface{}{
		"engagement_score":      score,
		"engagement_indicators": indicators,
		"recommendations":       []string{advice},
	}
}

var valueLevelActions = map[string][]string{
	"very_high": {
		"Assign a top sales representative immediately",
		"Arrange an executive-level meeting",
		"Present a customized solution demo",
	},
	"high": {
		"Assign an experienced sales representative",
		"Schedule a detailed product demo",
		"Provide an ROI analysis report",
	},
	"medium": {
		"Send product materials and case studies",
		"Invite the customer to a webinar",
		"Follow up regularly to understand needs",
	},
}

var insightActions = map[string]string{
	fusion.InsightPositiveText: "Leverage the customer's positive attitude to accelerate the deal",
	fusion.InsightHighValue:    "Prioritize resources and focus on this customer",
	fusion.InsightConversion:   "Prepare a detailed quotation",
}

var anomalyActions = map[string]string{
	fusion.AnomalyLowAudioQuality:    "Improve call conditions to ensure communication quality",
	fusion.AnomalyUnstableEngagement: "Investigate what is changing in the customer's needs",
}

// recommendations merges value-level, insight, anomaly and profile actions
// in that order without duplicates.
func recommendations(results map[string]interface{}, fused *multimodal.FusionResult, profile *multimodal.CustomerValueProfile) []string {
	var out []string

	if level, ok := results["value_level"].(string); ok {
		out = append(out, valueLevelActions[level]...)
	}
	for _, insight := range fused.Insights {
		if action, ok := insightActions[insight]; ok {
			out = append(out, action)
		}
	}
	for _, anomaly := range fused.Anomalies {
		if action, ok := anomalyActions[anomaly]; ok {
			out = append(out, action)
		}
	}
	if profile != nil {
		out = append(out, profile.RecommendedActions...)
	}

	return behavior.Dedupe(out)
}
