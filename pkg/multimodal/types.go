// Package multimodal defines the records exchanged between the collectors,
// the preprocessor, the fusion engine and the value scoring services.
package multimodal

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Modality identifies one channel of customer data.
type Modality string

const (
	ModalityText        Modality = "text"
	ModalityVoice       Modality = "voice"
	ModalityBehavior    Modality = "behavior"
	ModalityInteraction Modality = "interaction"
)

// AllModalities returns the four modalities in their canonical order.
func AllModalities() []Modality {
	return []Modality{ModalityText, ModalityVoice, ModalityBehavior, ModalityInteraction}
}

// Valid reports whether m is one of the known modalities.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityVoice, ModalityBehavior, ModalityInteraction:
		return true
	}
	return false
}

// ParseModality converts a case-insensitive name into a Modality.
func ParseModality(s string) (Modality, error) {
	m := Modality(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown modality %q", s)
	}
	return m, nil
}

// ParseModalities parses a comma separated modality list. An empty string
// yields all modalities.
func ParseModalities(s string) ([]Modality, error) {
	if strings.TrimSpace(s) == "" {
		return AllModalities(), nil
	}
	var out []Modality
	seen := make(map[Modality]bool)
	for _, part := range strings.Split(s, ",") {
		m, err := ParseModality(part)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Sentiment is the coarse polarity attached to text and voice records.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Code maps a sentiment onto {positive 1.0, neutral 0.5, negative 0.0}.
// Unknown values count as neutral.
func (s Sentiment) Code() float64 {
	switch s {
	case SentimentPositive:
		return 1.0
	case SentimentNegative:
		return 0.0
	default:
		return 0.5
	}
}

// PageView is a single page visited during a session.
type PageView struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"`
}

// ClickEvent is a single tracked click.
type ClickEvent struct {
	Element   string    `json:"element"`
	Timestamp time.Time `json:"timestamp"`
}

// BehaviorSession is one website visit reported by the behavior collector.
type BehaviorSession struct {
	CustomerID           string             `json:"customer_id"`
	SessionID            string             `json:"session_id"`
	PageViews            []PageView         `json:"page_views"`
	ClickEvents          []ClickEvent       `json:"click_events"`
	TimeSpent            map[string]float64 `json:"time_spent"`
	InteractionPatterns  map[string]float64 `json:"interaction_patterns"`
	EngagementScore      float64            `json:"engagement_score"`
	ConversionIndicators []string           `json:"conversion_indicators"`
	Timestamp            time.Time          `json:"timestamp"`
}

// TotalTimeSpent returns the seconds spent across all pages of the session.
func (s BehaviorSession) TotalTimeSpent() float64 {
	var total float64
	for _, v := range SortedValues(s.TimeSpent) {
		total += v
	}
	return total
}

// SortedValues returns the values of m ordered by key, so sums over them do
// not depend on map iteration order.
func SortedValues(m map[string]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	return out
}

// Pattern returns an interaction pattern value or def when absent.
func (s BehaviorSession) Pattern(name string, def float64) float64 {
	if v, ok := s.InteractionPatterns[name]; ok {
		return v
	}
	return def
}

// VoiceInsight is the analysis of one recorded call.
type VoiceInsight struct {
	CustomerID     string             `json:"customer_id,omitempty"`
	Transcript     string             `json:"transcript"`
	Confidence     float64            `json:"confidence"`
	Sentiment      Sentiment          `json:"sentiment"`
	Emotion        string             `json:"emotion"`
	SpeakingRate   float64            `json:"speaking_rate"`
	PauseFrequency float64            `json:"pause_frequency"`
	VoiceQuality   map[string]float64 `json:"voice_quality"`
	Keywords       []string           `json:"keywords"`
	Intent         string             `json:"intent,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// HasIntent reports whether a business intent was detected.
func (v VoiceInsight) HasIntent() bool {
	return v.Intent != ""
}

// TextRecord is a written message from the customer (email, chat, form).
type TextRecord struct {
	ID         string    `json:"id,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Sentiment  Sentiment `json:"sentiment"`
}

// InteractionRecord is one logged touchpoint between sales and the customer.
type InteractionRecord struct {
	ID                string    `json:"id,omitempty"`
	CustomerID        string    `json:"customer_id,omitempty"`
	Type              string    `json:"type"`
	Direction         string    `json:"direction"`
	Timestamp         time.Time `json:"timestamp"`
	ResponseTime      float64   `json:"response_time"`
	SatisfactionScore float64   `json:"satisfaction_score"`
}

// Inbound reports whether the customer initiated the interaction.
func (r InteractionRecord) Inbound() bool {
	return strings.EqualFold(r.Direction, "inbound")
}

// Customer is the master data used by the demographic indicators.
type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Size        string `json:"size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Status      string `json:"status,omitempty"`
	City        string `json:"city,omitempty"`
	FoundedYear int    `json:"founded_year,omitempty"`
}

// DefaultCustomer is used when no directory knows the customer.
func DefaultCustomer(id string) Customer {
	return Customer{ID: id, Size: "medium", Industry: "technology", Status: "qualified"}
}

// FusedDimension is the fixed length of every fused feature vector.
const FusedDimension = 10

// DataPoint is one preprocessed raw record.
type DataPoint struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customer_id"`
	Modality      Modality           `json:"modality"`
	Payload       Payload            `json:"-"`
	Processed     map[string]float64 `json:"processed"`
	FeatureVector []float64          `json:"feature_vector"`
	QualityScore  float64            `json:"quality_score"`
	Timestamp     time.Time          `json:"timestamp"`
}

// FusionResult is the outcome of fusing one customer's data points.
type FusionResult struct {
	CustomerID           string                  `json:"customer_id"`
	Timestamp            time.Time               `json:"timestamp"`
	InputModalities      []Modality              `json:"input_modalities"`
	FusedFeatures        [FusedDimension]float64 `json:"fused_features"`
	ConfidenceByModality map[Modality]float64    `json:"confidence_by_modality"`
	FusionQuality        float64                 `json:"fusion_quality"`
	Insights             []string                `json:"insights"`
	Anomalies            []string                `json:"anomalies"`
}

// ValueIndicator is one weighted signal about customer worth.
type ValueIndicator struct {
	Name           string   `json:"name"`
	Value          float64  `json:"value"`
	Weight         float64  `json:"weight"`
	Confidence     float64  `json:"confidence"`
	SourceModality Modality `json:"source_modality"`
	Method         string   `json:"method"`
}

// EngagementEntry is one session in a profile's engagement history.
type EngagementEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	EngagementScore float64   `json:"engagement_score"`
	PageViews       int       `json:"page_views"`
	TimeSpent       float64   `json:"time_spent"`
	Conversions     int       `json:"conversions"`
}

// CustomerValueProfile is the aggregated value assessment of one customer.
type CustomerValueProfile struct {
	CustomerID               string                   `json:"customer_id"`
	OverallScore             float64                  `json:"overall_score"`
	Indicators               []ValueIndicator         `json:"indicators"`
	BehavioralPatterns       BehavioralPatterns       `json:"behavioral_patterns"`
	CommunicationPreferences CommunicationPreferences `json:"communication_preferences"`
	EngagementHistory        []EngagementEntry        `json:"engagement_history"`
	PredictedValue           float64                  `json:"predicted_value"`
	RiskFactors              []string                 `json:"risk_factors"`
	Opportunities            []string                 `json:"opportunities"`
	RecommendedActions       []string                 `json:"recommended_actions"`
	LastUpdated              time.Time                `json:"last_updated"`
}

// BehavioralPatterns summarises when and how consistently a customer visits.
type BehavioralPatterns struct {
	PeakAccessHour     int      `json:"peak_access_hour"`
	AverageDailyVisits float64  `json:"average_daily_visits"`
	UniqueDays         int      `json:"unique_days"`
	TopPages           []string `json:"top_pages"`
	SessionConsistency float64  `json:"session_consistency"`
	EngagementTrend    string   `json:"engagement_trend"`
}

// CommunicationPreferences describes preferred channels and content.
type CommunicationPreferences struct {
	PreferredChannels  []string `json:"preferred_channels"`
	CommunicationStyle string   `json:"communication_style"`
	ContentPreferences []string `json:"content_preferences"`
}

// TimeRange bounds the records a collector returns. Both ends are inclusive;
// a zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastDays returns the range [now-days, now].
func LastDays(now time.Time, days int) TimeRange {
	return TimeRange{Start: now.AddDate(0, 0, -days), End: now}
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Analysis types dispatched by the orchestrator.
const (
	AnalysisHighValue       = "high_value_identification"
	AnalysisBehaviorPattern = "behavior_pattern_analysis"
	AnalysisSentiment       = "sentiment_analysis"
	AnalysisEngagement      = "engagement_analysis"
)

// AnalysisRequest asks the orchestrator to analyse one customer.
type AnalysisRequest struct {
	CustomerID   string                 `json:"customer_id"`
	AnalysisType string                 `json:"analysis_type"`
	Modalities   []Modality             `json:"modalities"`
	TimeRange    TimeRange              `json:"time_range"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
}

// AnalysisResult is the answer to an AnalysisRequest.
type AnalysisResult struct {
	RequestID        string                 `json:"request_id"`
	CustomerID       string                 `json:"customer_id"`
	AnalysisType     string                 `json:"analysis_type"`
	Results          map[string]interface{} `json:"results"`
	Fusion           *FusionResult          `json:"fusion,omitempty"`
	HighValueProfile *CustomerValueProfile  `json:"high_value_profile,omitempty"`
	Recommendations  []string               `json:"recommendations"`
	Confidence       float64                `json:"confidence"`
	ProcessingTime   float64                `json:"processing_time"`
	CreatedAt        time.Time              `json:"created_at"`
}

// RawRecords groups the records collected for one customer by modality.
type RawRecords struct {
	Text        []TextRecord        `json:"text,omitempty"`
	Voice       []VoiceInsight      `json:"voice,omitempty"`
	Behavior    []BehaviorSession   `json:"behavior,omitempty"`
	Interaction []InteractionRecord `json:"interaction,omitempty"`
}

// Count returns the number of records collected for m.
func (r RawRecords) Count(m Modality) int {
	switch m {
	case ModalityText:
		return len(r.Text)
	case ModalityVoice:
		return len(r.Voice)
	case ModalityBehavior:
		return len(r.Behavior)
	case ModalityInteraction:
		return len(r.Interaction)
	}
	return 0
}
