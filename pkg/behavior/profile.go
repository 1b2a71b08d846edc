package behavior

import (
	"maps"
	"math"
	"slices"
	"strings"

	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"
)

// Interest tags derived from visited URLs.
const (
	InterestProductInformation = "product_information"
	InterestPricing            = "pricing"
	InterestProductDemo        = "product_demo"
	InterestSuccessStories     = "success_stories"
	InterestTechnicalSupport   = "technical_support"
)

func (e *Engine) profile(sessions []multimodal.BehaviorSession, eng EngagementMetrics, access AccessPatterns, conv ConversionMetrics) Profile {
	score := stats.Unit(0.4*eng.AverageEngagement + 0.4*conv.Rate + 0.2*(1-eng.BounceRate))

	p := Profile{
		OverallScore:    score,
		Interests:       Interests(access.TopPages),
		PurchaseIntent:  purchaseIntent(eng, conv),
		PreferredAccess: AccessTime{Hour: access.PeakHour, Day: access.PeakDay},
		Consistency:     consistency(access),
		DigitalMaturity: digitalMaturity(eng),
	}

	switch {
	case score >= e.tiers.High:
		p.CustomerType, p.EngagementLevel = TypeHighValue, "high"
	case score >= e.tiers.Medium:
		p.CustomerType, p.EngagementLevel = TypeMediumValue, "medium"
	default:
		p.CustomerType, p.EngagementLevel = TypeLowValue, "low"
	}
	return p
}

// Interests maps visited pages onto interest tags. Each page contributes at
// most one tag; the result is deduplicated in page order.
func Interests(pages []PageCount) []string {
	interests := []string{}
	seen := make(map[string]bool)
	for _, page := range pages {
		tag := interestOf(page.URL)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		interests = append(interests, tag)
	}
	return interests
}

func interestOf(url string) string {
	switch {
	case contains(url, "product"):
		return InterestProductInformation
	case contains(url, "pricing"):
		return InterestPricing
	case contains(url, "demo"):
		return InterestProductDemo
	case contains(url, "case"), contains(url, "success"):
		return InterestSuccessStories
	case contains(url, "support"):
		return InterestTechnicalSupport
	}
	return ""
}

func purchaseIntent(eng EngagementMetrics, conv ConversionMetrics) PurchaseIntent {
	factors := map[string]float64{
		"engagement_score":    eng.AverageEngagement * 0.3,
		"conversion_rate":     conv.Rate * 0.4,
		"session_depth":       math.Min(1, float64(eng.TotalPageViews)/10) * 0.2,
		"conversion_velocity": math.Min(1, 1/math.Max(1, conv.VelocityHours)) * 0.1,
	}
	score := factors["engagement_score"] + factors["conversion_rate"] + factors["session_depth"] + factors["conversion_velocity"]

	return PurchaseIntent{
		Score:      score,
		Level:      IntentLevel(score),
		Factors:    factors,
		Confidence: math.Min(1, score+0.1),
	}
}

// IntentLevel buckets a purchase intent score at 0.2 steps.
func IntentLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "very_high"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	case score >= 0.2:
		return "low"
	default:
		return "very_low"
	}
}

// consistency is 1 minus the normalized entropy of the hour-of-day and
// day-of-week histograms, averaged.
func consistency(access AccessPatterns) float64 {
	if len(access.HourDistribution) == 0 || len(access.DayDistribution) == 0 {
		return 0
	}

	hours := make([]float64, 0, len(access.HourDistribution))
	for _, h := range slices.Sorted(maps.Keys(access.HourDistribution)) {
		hours = append(hours, float64(access.HourDistribution[h]))
	}
	days := make([]float64, 0, len(access.DayDistribution))
	for _, d := range slices.Sorted(maps.Keys(access.DayDistribution)) {
		days = append(days, float64(access.DayDistribution[d]))
	}

	hourConsistency := 1 - stats.Entropy2(hours)/math.Log2(24)
	dayConsistency := 1 - stats.Entropy2(days)/math.Log2(7)
	return stats.Unit((hourConsistency + dayConsistency) / 2)
}

func digitalMaturity(eng EngagementMetrics) string {
	switch {
	case eng.AverageSessionDuration > 300 && eng.BounceRate < 0.3 && eng.TotalClicks > 20:
		return "advanced"
	case eng.AverageSessionDuration > 120 && eng.BounceRate < 0.6 && eng.TotalClicks > 10:
		return "intermediate"
	default:
		return "beginner"
	}
}

var typeRecommendations = map[string][]string{
	TypeHighValue: {
		"Assign a senior sales representative for priority follow-up",
		"Offer a personalized product demo",
		"Arrange an executive meeting",
	},
	TypeMediumValue: {
		"Send detailed product materials",
		"Invite to a product webinar",
		"Share case studies and success stories",
	},
	TypeLowValue: {
		"Send an introductory product overview",
		"Offer a free trial",
		"Nurture interest through email campaigns",
	},
}

var interestRecommendations = []struct {
	interest string
	text     string
}{
	{InterestPricing, "Provide detailed pricing and ROI analysis"},
	{InterestProductDemo, "Arrange a personalized product demo"},
	{InterestTechnicalSupport, "Arrange a technical expert consultation"},
}

func recommendations(p Profile) []string {
	recs := append([]string(nil), typeRecommendations[p.CustomerType]...)

	switch p.PurchaseIntent.Level {
	case "very_high", "high":
		recs = append(recs, "Schedule a sales call immediately", "Prepare a detailed quotation")
	case "medium":
		recs = append(recs, "Send product comparison materials", "Invite to a product demo")
	}

	for _, r := range interestRecommendations {
		for _, in := range p.Interests {
			if in == r.interest {
				recs = append(recs, r.text)
				break
			}
		}
	}
	return Dedupe(recs)
}

// Dedupe drops repeated strings, keeping the first occurrence.
func Dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
