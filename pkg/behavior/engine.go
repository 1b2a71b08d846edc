// Package behavior computes engagement, access, conversion and anomaly
// metrics from a customer's website sessions and classifies the customer.
package behavior

import (
	"sort"
	"time"

	"crm-value-server/pkg/config"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"

	"github.com/sirupsen/logrus"
)

const (
	excessivePageViews = 50
	collectMoreData    = "Collect more customer behavior data"
)

// Engine analyzes behavior sessions. It holds no per-customer state and is
// safe for concurrent use.
type Engine struct {
	logger *logrus.Logger
	tiers  config.BehaviorTiers
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for time windows and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a behavior engine using the behavior tiers of scoring.
func NewEngine(logger *logrus.Logger, scoring config.Scoring, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		tiers:  scoring.BehaviorTiers,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Analyze builds the behavior report of customerID. A positive window keeps
// only sessions newer than now-window. No sessions yields a zeroed report.
func (e *Engine) Analyze(customerID string, sessions []multimodal.BehaviorSession, window time.Duration) *Analysis {
	now := e.now()
	sessions = FilterWindow(sessions, window, now)

	if len(sessions) == 0 {
		return emptyAnalysis(customerID, now)
	}

	engagement := engagementMetrics(sessions)
	access := accessPatterns(sessions)
	conversion := conversionMetrics(sessions)
	profile := e.profile(sessions, engagement, access, conversion)

	analysis := &Analysis{
		CustomerID:      customerID,
		AnalyzedAt:      now,
		DataPoints:      len(sessions),
		Engagement:      engagement,
		Access:          access,
		Conversion:      conversion,
		Profile:         profile,
		Anomalies:       DetectAnomalies(sessions),
		Recommendations: recommendations(profile),
	}

	e.logger.WithFields(logrus.Fields{
		"customer_id":   customerID,
		"sessions":      len(sessions),
		"overall_score": profile.OverallScore,
		"customer_type": profile.CustomerType,
	}).Debug("Behavior analysis completed")

	return analysis
}

func emptyAnalysis(customerID string, now time.Time) *Analysis {
	return &Analysis{
		CustomerID: customerID,
		AnalyzedAt: now,
		Access: AccessPatterns{
			HourDistribution: map[int]int{},
			DayDistribution:  map[time.Weekday]int{},
		},
		Conversion: ConversionMetrics{Funnel: map[string]int{}},
		Profile: Profile{
			CustomerType:    TypeUnknown,
			EngagementLevel: "none",
		},
		Anomalies:       []Anomaly{},
		Recommendations: []string{collectMoreData},
	}
}

// FilterWindow keeps the sessions at or after now-window. A non-positive
// window keeps everything.
func FilterWindow(sessions []multimodal.BehaviorSession, window time.Duration, now time.Time) []multimodal.BehaviorSession {
	if window <= 0 {
		return sessions
	}
	cutoff := now.Add(-window)
	out := make([]multimodal.BehaviorSession, 0, len(sessions))
	for _, s := range sessions {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// EngagementScores returns the engagement score of each session.
func EngagementScores(sessions []multimodal.BehaviorSession) []float64 {
	out := make([]float64, len(sessions))
	for i, s := range sessions {
		out[i] = s.EngagementScore
	}
	return out
}

func engagementMetrics(sessions []multimodal.BehaviorSession) EngagementMetrics {
	m := EngagementMetrics{Sessions: len(sessions)}
	durations := make([]float64, len(sessions))
	bounces := 0

	for i, s := range sessions {
		m.TotalPageViews += len(s.PageViews)
		m.TotalClicks += len(s.ClickEvents)
		durations[i] = s.TotalTimeSpent()
		if len(s.PageViews) == 1 {
			bounces++
		}
	}

	m.AverageEngagement = stats.Mean(EngagementScores(sessions))
	m.AverageSessionDuration = stats.Mean(durations)
	m.BounceRate = float64(bounces) / float64(len(sessions))
	return m
}

// TopPages ranks visited URLs by view count; ties keep first-seen order.
// n <= 0 returns every page.
func TopPages(sessions []multimodal.BehaviorSession, n int) []PageCount {
	counts := make(map[string]int)
	var order []string
	for _, s := range sessions {
		for _, pv := range s.PageViews {
			url := pageURL(pv)
			if _, seen := counts[url]; !seen {
				order = append(order, url)
			}
			counts[url]++
		}
	}

	pages := make([]PageCount, len(order))
	for i, url := range order {
		pages[i] = PageCount{URL: url, Visits: counts[url]}
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Visits > pages[j].Visits })

	if n > 0 && len(pages) > n {
		pages = pages[:n]
	}
	return pages
}

// PeakHour returns the most frequent session start hour; ties go to the
// hour seen first. Zero without sessions.
func PeakHour(sessions []multimodal.BehaviorSession) int {
	hours := make([]int, len(sessions))
	for i, s := range sessions {
		hours[i] = s.Timestamp.Hour()
	}
	return mode(hours)
}

func accessPatterns(sessions []multimodal.BehaviorSession) AccessPatterns {
	a := AccessPatterns{
		HourDistribution: make(map[int]int),
		DayDistribution:  make(map[time.Weekday]int),
	}

	days := make([]int, len(sessions))
	var paths [][]string
	for i, s := range sessions {
		a.HourDistribution[s.Timestamp.Hour()]++
		a.DayDistribution[s.Timestamp.Weekday()]++
		days[i] = int(s.Timestamp.Weekday())

		if len(s.PageViews) > 0 {
			path := make([]string, len(s.PageViews))
			for j, pv := range s.PageViews {
				path[j] = pageURL(pv)
			}
			paths = append(paths, path)
		}
	}

	a.PeakHour = PeakHour(sessions)
	a.PeakDay = time.Weekday(mode(days))

	all := TopPages(sessions, 0)
	a.UniquePages = len(all)
	if len(all) > 5 {
		all = all[:5]
	}
	a.TopPages = all
	a.CommonPaths = commonPaths(paths, len(sessions))
	return a
}

func commonPaths(paths [][]string, sessions int) []PathCount {
	type pair struct{ from, to string }
	counts := make(map[pair]int)
	var order []pair

	for _, path := range paths {
		for i := 0; i+1 < len(path); i++ {
			p := pair{path[i], path[i+1]}
			if _, seen := counts[p]; !seen {
				order = append(order, p)
			}
			counts[p]++
		}
	}

	out := make([]PathCount, len(order))
	for i, p := range order {
		out[i] = PathCount{
			Path:       []string{p.from, p.to},
			Frequency:  counts[p],
			Percentage: float64(counts[p]) / float64(sessions),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// FunnelStage classifies a conversion indicator; "" when it matches no stage.
func FunnelStage(indicator string) string {
	switch {
	case contains(indicator, "contact_form"):
		return StageContactForm
	case contains(indicator, "demo_request"):
		return StageDemoRequest
	case contains(indicator, "pricing_page"):
		return StagePricingInterest
	case contains(indicator, "download"):
		return StageResourceDownload
	}
	return ""
}

func conversionMetrics(sessions []multimodal.BehaviorSession) ConversionMetrics {
	c := ConversionMetrics{Funnel: make(map[string]int)}
	unique := make(map[string]struct{})

	for _, s := range sessions {
		for _, ind := range s.ConversionIndicators {
			c.TotalEvents++
			unique[ind] = struct{}{}
			if stage := FunnelStage(ind); stage != "" {
				c.Funnel[stage]++
			}
		}
	}

	c.UniqueEvents = len(unique)
	c.Rate = float64(len(unique)) / float64(len(sessions))
	c.VelocityHours = conversionVelocity(sessions)
	return c
}

// conversionVelocity is the mean number of hours between the first session
// and each converting session.
func conversionVelocity(sessions []multimodal.BehaviorSession) float64 {
	if len(sessions) < 2 {
		return 0
	}

	first := sessions[0].Timestamp
	for _, s := range sessions[1:] {
		if s.Timestamp.Before(first) {
			first = s.Timestamp
		}
	}

	var hours []float64
	for _, s := range sessions {
		if len(s.ConversionIndicators) > 0 {
			hours = append(hours, s.Timestamp.Sub(first).Hours())
		}
	}
	return stats.Mean(hours)
}

// DetectAnomalies flags sessions whose engagement or duration lies more
// than two standard deviations from the customer's mean, and sessions with
// more than 50 page views.
func DetectAnomalies(sessions []multimodal.BehaviorSession) []Anomaly {
	anomalies := []Anomaly{}
	if len(sessions) == 0 {
		return anomalies
	}

	engagement := EngagementScores(sessions)
	durations := make([]float64, len(sessions))
	for i, s := range sessions {
		durations[i] = s.TotalTimeSpent()
	}
	meanEng, stdEng := stats.MeanStdDev(engagement)
	meanDur, stdDur := stats.MeanStdDev(durations)

	for i, s := range sessions {
		if a, ok := deviation(AnomalyEngagement, s.SessionID, engagement[i], meanEng, stdEng); ok {
			anomalies = append(anomalies, a)
		}
		if a, ok := deviation(AnomalyDuration, s.SessionID, durations[i], meanDur, stdDur); ok {
			anomalies = append(anomalies, a)
		}
		if len(s.PageViews) > excessivePageViews {
			anomalies = append(anomalies, Anomaly{
				Type:      AnomalyExcessiveBrowsing,
				SessionID: s.SessionID,
				Value:     float64(len(s.PageViews)),
				Severity:  SeverityMedium,
			})
		}
	}
	return anomalies
}

func deviation(kind, sessionID string, x, mean, std float64) (Anomaly, bool) {
	dist := x - mean
	if dist < 0 {
		dist = -dist
	}
	if dist <= 2*std {
		return Anomaly{}, false
	}
	severity := SeverityMedium
	if dist > 3*std {
		severity = SeverityHigh
	}
	return Anomaly{
		Type:          kind,
		SessionID:     sessionID,
		Value:         x,
		ExpectedRange: []float64{mean - std, mean + std},
		Severity:      severity,
	}, true
}

func pageURL(pv multimodal.PageView) string {
	if pv.URL == "" {
		return "unknown"
	}
	return pv.URL
}

// mode returns the most frequent value, preferring the earliest on ties.
func mode(values []int) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}
