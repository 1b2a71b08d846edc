// Package highvalue aggregates weighted value indicators into customer value
// profiles and picks out the customers worth prioritising.
package highvalue

import (
	"sort"
	"time"

	"crm-value-server/pkg/behavior"
	"crm-value-server/pkg/config"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"

	"github.com/sirupsen/logrus"
)

// defaultWindowDays normalizes visit frequency when no window is given.
const defaultWindowDays = 30

// modalityOrder fixes the order modality scores are combined in so repeated
// runs produce bit-identical scores.
var modalityOrder = []multimodal.Modality{
	multimodal.ModalityBehavior,
	multimodal.ModalityText,
	multimodal.ModalityInteraction,
	multimodal.ModalityVoice,
}

// Service computes customer value profiles. It is stateless apart from its
// configuration and safe for concurrent use.
type Service struct {
	logger  *logrus.Logger
	scoring config.Scoring
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for windows, company age and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a value service with the given scoring configuration.
func NewService(logger *logrus.Logger, scoring config.Scoring, opts ...Option) *Service {
	s := &Service{
		logger:  logger,
		scoring: scoring,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdentifyHighValueCustomers profiles every customer and returns those scoring
// at least the configured minimum, best first. Sessions and voice insights are
// matched to customers by customer ID; records of unknown customers are ignored.
func (s *Service) IdentifyHighValueCustomers(customers []multimodal.Customer, sessions []multimodal.BehaviorSession, voice []multimodal.VoiceInsight, window time.Duration) []*multimodal.CustomerValueProfile {
	all := s.ProfileAll(customers, sessions, voice, window)

	profiles := make([]*multimodal.CustomerValueProfile, 0, len(all))
	for _, p := range all {
		if p.OverallScore >= s.scoring.HighValueMinScore {
			profiles = append(profiles, p)
		}
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].OverallScore > profiles[j].OverallScore
	})

	s.logger.WithFields(logrus.Fields{
		"customers":  len(all),
		"high_value": len(profiles),
	}).Info("Identified high-value customers")

	return profiles
}

// ProfileAll profiles each distinct customer in input order, whatever the
// score. Customers without an ID are skipped.
func (s *Service) ProfileAll(customers []multimodal.Customer, sessions []multimodal.BehaviorSession, voice []multimodal.VoiceInsight, window time.Duration) []*multimodal.CustomerValueProfile {
	sessionsByCustomer := make(map[string][]multimodal.BehaviorSession)
	voiceByCustomer := make(map[string][]multimodal.VoiceInsight)
	known := make(map[string]bool, len(customers))
	for _, c := range customers {
		if c.ID != "" {
			known[c.ID] = true
		}
	}
	for _, sess := range sessions {
		if known[sess.CustomerID] {
			sessionsByCustomer[sess.CustomerID] = append(sessionsByCustomer[sess.CustomerID], sess)
		}
	}
	for _, v := range voice {
		if known[v.CustomerID] {
			voiceByCustomer[v.CustomerID] = append(voiceByCustomer[v.CustomerID], v)
		}
	}

	profiles := make([]*multimodal.CustomerValueProfile, 0, len(known))
	seen := make(map[string]bool, len(known))
	for _, c := range customers {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		profiles = append(profiles, s.Profile(c, sessionsByCustomer[c.ID], voiceByCustomer[c.ID], window))
	}
	return profiles
}

// Profile builds the full value profile of one customer regardless of score.
func (s *Service) Profile(customer multimodal.Customer, sessions []multimodal.BehaviorSession, voice []multimodal.VoiceInsight, window time.Duration) *multimodal.CustomerValueProfile {
	now := s.now()
	sessions = behavior.FilterWindow(sessions, window, now)

	windowDays := defaultWindowDays
	if window > 0 {
		windowDays = int(window / (24 * time.Hour))
	}

	var indicators []multimodal.ValueIndicator
	indicators = append(indicators, behavioralIndicators(sessions, windowDays)...)
	indicators = append(indicators, s.transactionalIndicators(customer)...)
	indicators = append(indicators, engagementIndicators(sessions, voice)...)
	indicators = append(indicators, s.demographicIndicators(customer, now)...)
	indicators = append(indicators, voiceSentimentIndicators(voice)...)

	score := s.WeightedScore(indicators)
	patterns := behavioralPatterns(sessions)
	risks := riskFactors(indicators, patterns)
	opps := opportunities(indicators, patterns)

	profile := &multimodal.CustomerValueProfile{
		CustomerID:               customer.ID,
		OverallScore:             score,
		Indicators:               indicators,
		BehavioralPatterns:       patterns,
		CommunicationPreferences: communicationPreferences(voice, sessions),
		EngagementHistory:        engagementHistory(sessions),
		PredictedValue:           predictValue(score, patterns),
		RiskFactors:              risks,
		Opportunities:            opps,
		RecommendedActions:       s.recommendedActions(score, risks, opps),
		LastUpdated:              now,
	}

	metrics.ObserveProfileScore(score)
	s.logger.WithFields(logrus.Fields{
		"customer_id":   customer.ID,
		"overall_score": score,
		"indicators":    len(indicators),
	}).Debug("Computed customer value profile")

	return profile
}

// WeightedScore combines indicators into one score in [0,1]. Indicators are
// averaged per source modality weighted by weight·confidence, then modality
// scores are combined with the configured value weights renormalized over the
// modalities actually present.
func (s *Service) WeightedScore(indicators []multimodal.ValueIndicator) float64 {
	if len(indicators) == 0 {
		return 0
	}

	type acc struct{ value, weight float64 }
	groups := make(map[multimodal.Modality]*acc)
	for _, ind := range indicators {
		g, ok := groups[ind.SourceModality]
		if !ok {
			g = &acc{}
			groups[ind.SourceModality] = g
		}
		g.value += ind.Value * ind.Weight * ind.Confidence
		g.weight += ind.Weight * ind.Confidence
	}

	var total, available float64
	for _, m := range modalityOrder {
		g, ok := groups[m]
		if !ok {
			continue
		}
		w := s.scoring.Value.For(m)
		total += g.value / max(g.weight, 0.001) * w
		available += w
	}
	if available == 0 {
		return 0
	}
	return stats.Unit(total / available)
}

// Distribution summarises the scores of a set of profiles.
type Distribution struct {
	TotalCustomers int            `json:"total_customers"`
	Buckets        map[string]int `json:"value_distribution"`
	AverageScore   float64        `json:"average_score"`
	MedianScore    float64        `json:"median_score"`
	ScoreStdDev    float64        `json:"score_std"`
	P90Threshold   float64        `json:"top_10_percent_threshold"`
}

// GetValueDistribution buckets profile scores by tier and reports summary
// statistics. An empty input yields zero counts.
func (s *Service) GetValueDistribution(profiles []*multimodal.CustomerValueProfile) Distribution {
	d := Distribution{
		TotalCustomers: len(profiles),
		Buckets:        map[string]int{"very_high": 0, "high": 0, "medium": 0, "low": 0},
	}
	if len(profiles) == 0 {
		return d
	}

	scores := make([]float64, len(profiles))
	for i, p := range profiles {
		scores[i] = p.OverallScore
		d.Buckets[s.scoring.Tiers.Tier(p.OverallScore)]++
	}

	d.AverageScore, d.ScoreStdDev = stats.MeanStdDev(scores)
	d.MedianScore = stats.Median(scores)
	d.P90Threshold = stats.Percentile(scores, 90)
	return d
}
