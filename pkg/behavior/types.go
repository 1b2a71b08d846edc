package behavior

import "time"

// Analysis is the behavior report of one customer.
type Analysis struct {
	CustomerID      string            `json:"customer_id"`
	AnalyzedAt      time.Time         `json:"analyzed_at"`
	DataPoints      int               `json:"data_points_count"`
	Engagement      EngagementMetrics `json:"engagement_metrics"`
	Access          AccessPatterns    `json:"access_patterns"`
	Conversion      ConversionMetrics `json:"conversion_metrics"`
	Profile         Profile           `json:"behavior_profile"`
	Anomalies       []Anomaly         `json:"anomalies"`
	Recommendations []string          `json:"recommendations"`
}

// EngagementMetrics aggregates interactivity over all sessions.
type EngagementMetrics struct {
	AverageEngagement      float64 `json:"average_engagement_score"`
	TotalPageViews         int     `json:"total_page_views"`
	TotalClicks            int     `json:"total_clicks"`
	AverageSessionDuration float64 `json:"average_session_duration"`
	BounceRate             float64 `json:"bounce_rate"`
	Sessions               int     `json:"sessions_count"`
}

// PageCount is a page and how often it was viewed.
type PageCount struct {
	URL    string `json:"url"`
	Visits int    `json:"visits"`
}

// PathCount is a two-page transition and how often it occurred.
type PathCount struct {
	Path       []string `json:"path"`
	Frequency  int      `json:"frequency"`
	Percentage float64  `json:"percentage"`
}

// AccessPatterns describes when and where a customer browses.
type AccessPatterns struct {
	PeakHour         int                  `json:"peak_access_hour"`
	PeakDay          time.Weekday         `json:"peak_access_day"`
	HourDistribution map[int]int          `json:"hour_distribution"`
	DayDistribution  map[time.Weekday]int `json:"day_distribution"`
	TopPages         []PageCount          `json:"top_pages"`
	UniquePages      int                  `json:"unique_pages_visited"`
	CommonPaths      []PathCount          `json:"common_access_paths"`
}

// Funnel stage keys.
const (
	StageContactForm      = "contact_form"
	StageDemoRequest      = "demo_request"
	StagePricingInterest  = "pricing_interest"
	StageResourceDownload = "resource_download"
)

// ConversionMetrics describes conversion activity.
type ConversionMetrics struct {
	Rate          float64        `json:"conversion_rate"`
	TotalEvents   int            `json:"total_conversion_events"`
	UniqueEvents  int            `json:"unique_conversion_events"`
	Funnel        map[string]int `json:"funnel_stages"`
	VelocityHours float64        `json:"conversion_velocity"`
}

// Anomaly types and severities.
const (
	AnomalyEngagement        = "engagement_anomaly"
	AnomalyDuration          = "duration_anomaly"
	AnomalyExcessiveBrowsing = "excessive_browsing"

	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Anomaly flags one session that deviates from the customer's norm.
type Anomaly struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	Value     float64 `json:"value"`
	// ExpectedRange is mean ± one standard deviation; nil for excessive browsing.
	ExpectedRange []float64 `json:"expected_range,omitempty"`
	Severity      string    `json:"severity"`
}

// Customer types.
const (
	TypeHighValue   = "high_value"
	TypeMediumValue = "medium_value"
	TypeLowValue    = "low_value"
	TypeUnknown     = "unknown"
)

// Profile is the behavioral classification of a customer.
type Profile struct {
	OverallScore    float64        `json:"overall_score"`
	CustomerType    string         `json:"customer_type"`
	EngagementLevel string         `json:"engagement_level"`
	Interests       []string       `json:"interests"`
	PurchaseIntent  PurchaseIntent `json:"purchase_intent"`
	PreferredAccess AccessTime     `json:"preferred_access_time"`
	Consistency     float64        `json:"behavior_consistency"`
	DigitalMaturity string         `json:"digital_maturity"`
}

// AccessTime is a preferred hour of day and day of week.
type AccessTime struct {
	Hour int          `json:"hour"`
	Day  time.Weekday `json:"day"`
}

// PurchaseIntent is the estimated willingness to buy.
type PurchaseIntent struct {
	Score      float64            `json:"score"`
	Level      string             `json:"level"`
	Factors    map[string]float64 `json:"factors"`
	Confidence float64            `json:"confidence"`
}
