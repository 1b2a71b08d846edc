package highvalue

import (
	"sort"
	"strings"

	"crm-value-server/pkg/behavior"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"
)

// Engagement trends.
const (
	TrendIncreasing       = "increasing"
	TrendStable           = "stable"
	TrendDecreasing       = "decreasing"
	TrendInsufficientData = "insufficient_data"
)

const (
	riskDecreasing       = "Engagement is trending down"
	riskInconsistent     = "Inconsistent visit behavior, interest may be unstable"
	riskNegativeVoice    = "Frequent negative sentiment on calls"
	riskLowFrequency     = "Low visit frequency, interest may be limited"
	oppHighEngagement    = "High engagement, ready for in-depth conversations"
	oppIncreasing        = "Engagement is rising, timing is favorable"
	oppHighValueIndustry = "Operates in a high-value industry"
	oppLargeCompany      = "Large company with strong purchasing power"
	oppPositiveVoice     = "Positive call sentiment, relationship is healthy"
)

// neutralConsistency stands in for session consistency when a customer has
// no sessions at all.
const neutralConsistency = 0.5

func behavioralPatterns(sessions []multimodal.BehaviorSession) multimodal.BehavioralPatterns {
	if len(sessions) == 0 {
		return multimodal.BehavioralPatterns{
			SessionConsistency: neutralConsistency,
			EngagementTrend:    TrendInsufficientData,
			TopPages:           []string{},
		}
	}

	days := make(map[string]struct{})
	for _, s := range sessions {
		days[s.Timestamp.Format("2006-01-02")] = struct{}{}
	}

	top := behavior.TopPages(sessions, 5)
	pages := make([]string, len(top))
	for i, p := range top {
		pages[i] = p.URL
	}

	return multimodal.BehavioralPatterns{
		PeakAccessHour:     behavior.PeakHour(sessions),
		AverageDailyVisits: float64(len(sessions)) / float64(max(1, len(days))),
		UniqueDays:         len(days),
		TopPages:           pages,
		SessionConsistency: SessionConsistency(sessions),
		EngagementTrend:    EngagementTrend(sessions),
	}
}

// SessionConsistency is 1 - std/mean of session engagement, floored at 0.
// Fewer than two sessions give 0.
func SessionConsistency(sessions []multimodal.BehaviorSession) float64 {
	if len(sessions) < 2 {
		return 0
	}
	mean, std := stats.MeanStdDev(behavior.EngagementScores(sessions))
	return max(0, 1-std/max(mean, 0.1))
}

// EngagementTrend compares the mean engagement of the older and newer half of
// the sessions. Differences within 0.1 count as stable.
func EngagementTrend(sessions []multimodal.BehaviorSession) string {
	if len(sessions) < 3 {
		return TrendInsufficientData
	}

	sorted := append([]multimodal.BehaviorSession(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	mid := len(sorted) / 2
	early := stats.Mean(behavior.EngagementScores(sorted[:mid]))
	recent := stats.Mean(behavior.EngagementScores(sorted[mid:]))

	switch diff := recent - early; {
	case diff > 0.1:
		return TrendIncreasing
	case diff < -0.1:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func trendMultiplier(trend string) float64 {
	switch trend {
	case TrendIncreasing:
		return 1.2
	case TrendDecreasing:
		return 0.8
	default:
		return 1.0
	}
}

func predictValue(score float64, p multimodal.BehavioralPatterns) float64 {
	consistency := 0.8 + 0.4*p.SessionConsistency
	return stats.Unit(score * trendMultiplier(p.EngagementTrend) * consistency)
}

func communicationPreferences(voice []multimodal.VoiceInsight, sessions []multimodal.BehaviorSession) multimodal.CommunicationPreferences {
	prefs := multimodal.CommunicationPreferences{
		PreferredChannels:  []string{},
		CommunicationStyle: "unknown",
		ContentPreferences: []string{},
	}

	if len(voice) > 0 {
		rates := make([]float64, len(voice))
		pauses := make([]float64, len(voice))
		for i, v := range voice {
			rates[i] = v.SpeakingRate
			pauses[i] = v.PauseFrequency
		}
		rate, pause := stats.Mean(rates), stats.Mean(pauses)

		switch {
		case rate > 150 && pause < 0.1:
			prefs.CommunicationStyle = "direct_fast"
		case rate < 100 && pause > 0.2:
			prefs.CommunicationStyle = "thoughtful_slow"
		default:
			prefs.CommunicationStyle = "balanced"
		}
		prefs.PreferredChannels = append(prefs.PreferredChannels, "voice_call")
	}

	if len(sessions) > 0 {
		prefs.PreferredChannels = append(prefs.PreferredChannels, "digital_interaction")

		var demo, cases, pricing bool
		for _, s := range sessions {
			for _, pv := range s.PageViews {
				url := strings.ToLower(pv.URL)
				demo = demo || strings.Contains(url, "demo")
				cases = cases || strings.Contains(url, "case")
				pricing = pricing || strings.Contains(url, "pricing")
			}
		}
		if demo {
			prefs.ContentPreferences = append(prefs.ContentPreferences, "product_demos")
		}
		if cases {
			prefs.ContentPreferences = append(prefs.ContentPreferences, "case_studies")
		}
		if pricing {
			prefs.ContentPreferences = append(prefs.ContentPreferences, "pricing_information")
		}
	}

	return prefs
}

func riskFactors(indicators []multimodal.ValueIndicator, p multimodal.BehavioralPatterns) []string {
	risks := []string{}
	if p.EngagementTrend == TrendDecreasing {
		risks = append(risks, riskDecreasing)
	}
	if p.SessionConsistency < 0.3 {
		risks = append(risks, riskInconsistent)
	}
	if ind, ok := findIndicator(indicators, "sentiment_positivity"); ok && ind.Value < 0.4 {
		risks = append(risks, riskNegativeVoice)
	}
	if p.AverageDailyVisits < 0.5 {
		risks = append(risks, riskLowFrequency)
	}
	return risks
}

func opportunities(indicators []multimodal.ValueIndicator, p multimodal.BehavioralPatterns) []string {
	opps := []string{}
	for _, ind := range indicators {
		if strings.Contains(ind.Name, "engagement") && ind.Value > 0.7 {
			opps = append(opps, oppHighEngagement)
			break
		}
	}
	if p.EngagementTrend == TrendIncreasing {
		opps = append(opps, oppIncreasing)
	}
	if ind, ok := findIndicator(indicators, "industry_value"); ok && ind.Value > 0.7 {
		opps = append(opps, oppHighValueIndustry)
	}
	if ind, ok := findIndicator(indicators, "company_size"); ok && ind.Value > 0.7 {
		opps = append(opps, oppLargeCompany)
	}
	if ind, ok := findIndicator(indicators, "sentiment_positivity"); ok && ind.Value > 0.7 {
		opps = append(opps, oppPositiveVoice)
	}
	return opps
}

var tierActions = map[string][]string{
	"very_high": {
		"Assign a top sales representative immediately",
		"Arrange an executive-level meeting",
		"Offer a customized solution",
		"Prioritize all open requests",
	},
	"high": {
		"Assign an experienced sales representative",
		"Schedule a product demo",
		"Provide a detailed ROI analysis",
		"Set up a regular check-in cadence",
	},
	"medium": {
		"Assign a sales specialist to follow up",
		"Send relevant case studies",
		"Invite to an upcoming webinar",
	},
	"low": {
		"Nurture through email campaigns",
		"Share introductory product information",
		"Monitor behavior changes",
	},
}

var followUps = map[string]string{
	riskDecreasing:    "Reach out to understand the drop and rekindle interest",
	riskNegativeVoice: "Have a customer success manager check in",
	oppIncreasing:     "Accelerate the deal while interest is rising",
	oppPositiveVoice:  "Build on the relationship to recommend more products",
}

func (s *Service) recommendedActions(score float64, risks, opps []string) []string {
	actions := append([]string(nil), tierActions[s.scoring.Tiers.Tier(score)]...)
	for _, tag := range append(append([]string(nil), risks...), opps...) {
		if action, ok := followUps[tag]; ok {
			actions = append(actions, action)
		}
	}
	return behavior.Dedupe(actions)
}

func engagementHistory(sessions []multimodal.BehaviorSession) []multimodal.EngagementEntry {
	history := make([]multimodal.EngagementEntry, len(sessions))
	for i, s := range sessions {
		history[i] = multimodal.EngagementEntry{
			Timestamp:       s.Timestamp,
			EngagementScore: s.EngagementScore,
			PageViews:       len(s.PageViews),
			TimeSpent:       s.TotalTimeSpent(),
			Conversions:     len(s.ConversionIndicators),
		}
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })
	return history
}
