package highvalue

import (
	"strings"
	"time"

	"crm-value-server/pkg/behavior"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"
)

var (
	sizeScores = map[string]float64{
		"startup":    0.2,
		"small":      0.4,
		"medium":     0.6,
		"large":      0.8,
		"enterprise": 1.0,
	}
	statusScores = map[string]float64{
		"prospect":  0.3,
		"qualified": 0.6,
		"customer":  0.9,
		"inactive":  0.1,
	}
)

func indicator(name string, value, weight, confidence float64, m multimodal.Modality, method string) multimodal.ValueIndicator {
	return multimodal.ValueIndicator{
		Name:           name,
		Value:          stats.Unit(value),
		Weight:         weight,
		Confidence:     confidence,
		SourceModality: m,
		Method:         method,
	}
}

func behavioralIndicators(sessions []multimodal.BehaviorSession, windowDays int) []multimodal.ValueIndicator {
	if len(sessions) == 0 {
		return nil
	}

	pageViews := make([]float64, len(sessions))
	conversions := 0
	for i, s := range sessions {
		pageViews[i] = float64(len(s.PageViews))
		conversions += len(s.ConversionIndicators)
	}
	visitsPerDay := float64(len(sessions)) / float64(max(1, windowDays))

	return []multimodal.ValueIndicator{
		indicator("visit_frequency", min(1, visitsPerDay/5), 0.3, 0.9,
			multimodal.ModalityBehavior, "visits_per_day_normalized"),
		indicator("average_engagement", stats.Mean(behavior.EngagementScores(sessions)), 0.4, 0.95,
			multimodal.ModalityBehavior, "mean_engagement_score"),
		indicator("session_depth", min(1, stats.Mean(pageViews)/20), 0.2, 0.85,
			multimodal.ModalityBehavior, "average_page_views_normalized"),
		indicator("conversion_activity", min(1, float64(conversions)/10), 0.1, 0.8,
			multimodal.ModalityBehavior, "total_conversions_normalized"),
	}
}

func (s *Service) transactionalIndicators(c multimodal.Customer) []multimodal.ValueIndicator {
	size, ok := sizeScores[strings.ToLower(c.Size)]
	if !ok {
		size = sizeScores["small"]
	}

	industry := 0.4
	for _, hv := range s.scoring.HighValueIndustries {
		if strings.EqualFold(hv, c.Industry) {
			industry = 0.8
			break
		}
	}

	status, ok := statusScores[strings.ToLower(c.Status)]
	if !ok {
		status = statusScores["prospect"]
	}

	return []multimodal.ValueIndicator{
		indicator("company_size", size, 0.4, 0.95, multimodal.ModalityText, "categorical_mapping"),
		indicator("industry_value", industry, 0.3, 0.8, multimodal.ModalityText, "industry_classification"),
		indicator("customer_status", status, 0.3, 0.9, multimodal.ModalityText, "status_mapping"),
	}
}

func engagementIndicators(sessions []multimodal.BehaviorSession, voice []multimodal.VoiceInsight) []multimodal.ValueIndicator {
	var out []multimodal.ValueIndicator
	if len(sessions) > 0 {
		out = append(out, indicator("digital_engagement", stats.Mean(behavior.EngagementScores(sessions)), 0.6, 0.9,
			multimodal.ModalityBehavior, "mean_digital_engagement"))
	}
	if len(voice) > 0 {
		factors := make([]float64, len(voice))
		for i, v := range voice {
			intent := 0.0
			if v.HasIntent() {
				intent = 1
			}
			factors[i] = 0.4*v.Confidence + 0.3*sentimentScore(v.Sentiment) + 0.3*intent
		}
		out = append(out, indicator("voice_engagement", stats.Mean(factors), 0.4, 0.8,
			multimodal.ModalityVoice, "composite_voice_engagement"))
	}
	return out
}

func (s *Service) demographicIndicators(c multimodal.Customer, now time.Time) []multimodal.ValueIndicator {
	location := 0.6
	switch {
	case containsFold(s.scoring.Tier1Cities, c.City):
		location = 1.0
	case containsFold(s.scoring.Tier2Cities, c.City):
		location = 0.8
	}

	stability := 0.5
	if c.FoundedYear > 0 {
		age := now.Year() - c.FoundedYear
		switch {
		case age >= 3 && age <= 20:
			stability = 0.9
		case age > 20:
			stability = 0.8
		default:
			stability = 0.6
		}
	}

	return []multimodal.ValueIndicator{
		indicator("location_value", location, 0.5, 0.7, multimodal.ModalityText, "city_tier_classification"),
		indicator("company_stability", stability, 0.5, 0.6, multimodal.ModalityText, "company_age_assessment"),
	}
}

func voiceSentimentIndicators(voice []multimodal.VoiceInsight) []multimodal.ValueIndicator {
	if len(voice) == 0 {
		return nil
	}

	var positive, withIntent int
	confidences := make([]float64, len(voice))
	for i, v := range voice {
		if v.Sentiment == multimodal.SentimentPositive {
			positive++
		}
		if v.HasIntent() {
			withIntent++
		}
		confidences[i] = v.Confidence
	}
	n := float64(len(voice))

	return []multimodal.ValueIndicator{
		indicator("sentiment_positivity", float64(positive)/n, 0.4, 0.8,
			multimodal.ModalityVoice, "positive_sentiment_ratio"),
		indicator("voice_clarity", stats.Mean(confidences), 0.3, 0.9,
			multimodal.ModalityVoice, "average_transcription_confidence"),
		indicator("intent_clarity", float64(withIntent)/n, 0.3, 0.7,
			multimodal.ModalityVoice, "intent_detection_ratio"),
	}
}

// sentimentScore differs from Sentiment.Code: negative calls still count
// for some engagement.
func sentimentScore(s multimodal.Sentiment) float64 {
	switch s {
	case multimodal.SentimentPositive:
		return 1.0
	case multimodal.SentimentNeutral:
		return 0.5
	default:
		return 0.2
	}
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

func findIndicator(indicators []multimodal.ValueIndicator, name string) (multimodal.ValueIndicator, bool) {
	for _, ind := range indicators {
		if ind.Name == name {
			return ind, true
		}
	}
	return multimodal.ValueIndicator{}, false
}
