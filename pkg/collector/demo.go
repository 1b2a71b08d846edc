package collector

import (
	"context"
	"fmt"
	"time"

	"crm-value-server/pkg/multimodal"
)

// DemoSource serves the same small synthetic activity history for every
// customer, with timestamps relative to its clock. It stands in for real
// collaborators in local runs.
type DemoSource struct {
	now func() time.Time
}

// NewDemoSource creates a demo source. A nil clock uses time.Now.
func NewDemoSource(now func() time.Time) *DemoSource {
	if now == nil {
		now = time.Now
	}
	return &DemoSource{now: now}
}

// Records returns the full synthetic history of customerID.
func (d *DemoSource) Records(customerID string) multimodal.RawRecords {
	now := d.now()
	at := func(ago time.Duration) time.Time { return now.Add(-ago) }

	return multimodal.RawRecords{
		Text: []multimodal.TextRecord{
			{
				ID:         fmt.Sprintf("text_%s_1", customerID),
				CustomerID: customerID,
				Content:    "Our company is looking for a CRM system to improve sales efficiency.",
				Timestamp:  at(48 * time.Hour),
				Source:     "email",
				Sentiment:  multimodal.SentimentPositive,
			},
			{
				ID:         fmt.Sprintf("text_%s_2", customerID),
				CustomerID: customerID,
				Content:    "How many users can use your product at the same time?",
				Timestamp:  at(24 * time.Hour),
				Source:     "chat",
				Sentiment:  multimodal.SentimentNeutral,
			},
		},
		Voice: []multimodal.VoiceInsight{
			{
				CustomerID:     customerID,
				Transcript:     "Hello, I would like to learn more about your CRM product",
				Confidence:     0.92,
				Sentiment:      multimodal.SentimentPositive,
				Emotion:        "interested",
				SpeakingRate:   120.5,
				PauseFrequency: 0.15,
				VoiceQuality:   map[string]float64{"clarity": 0.88, "volume": 0.75, "pitch_stability": 0.82},
				Keywords:       []string{"CRM", "product", "learn"},
				Intent:         "product_inquiry",
				Timestamp:      at(72 * time.Hour),
			},
			{
				CustomerID:     customerID,
				Transcript:     "We have more than 200 employees and need a system to manage customer relationships",
				Confidence:     0.89,
				Sentiment:      multimodal.SentimentNeutral,
				Emotion:        "business_focused",
				SpeakingRate:   110.2,
				PauseFrequency: 0.18,
				VoiceQuality:   map[string]float64{"clarity": 0.85, "volume": 0.78, "pitch_stability": 0.80},
				Keywords:       []string{"company", "employees", "manage", "customer relationships", "system"},
				Intent:         "requirement_specification",
				Timestamp:      at(24 * time.Hour),
			},
		},
		Behavior: []multimodal.BehaviorSession{
			{
				CustomerID: customerID,
				SessionID:  fmt.Sprintf("session_%s_1", customerID),
				PageViews: []multimodal.PageView{
					{URL: "/products", Timestamp: at(2 * time.Hour), Duration: 120},
					{URL: "/pricing", Timestamp: at(2*time.Hour - 5*time.Minute), Duration: 180},
					{URL: "/demo", Timestamp: at(2*time.Hour - 10*time.Minute), Duration: 300},
				},
				ClickEvents: []multimodal.ClickEvent{
					{Element: "demo_button", Timestamp: at(2*time.Hour - 10*time.Minute)},
					{Element: "pricing_link", Timestamp: at(2*time.Hour - 5*time.Minute)},
					{Element: "contact_form", Timestamp: at(2*time.Hour - 2*time.Minute)},
				},
				TimeSpent:            map[string]float64{"/products": 120, "/pricing": 180, "/demo": 300},
				InteractionPatterns:  map[string]float64{"scroll_depth": 0.85, "click_through_rate": 0.75, "form_completion": 1},
				EngagementScore:      0.82,
				ConversionIndicators: []string{"demo_request", "contact_form_filled"},
				Timestamp:            at(2 * time.Hour),
			},
			{
				CustomerID: customerID,
				SessionID:  fmt.Sprintf("session_%s_2", customerID),
				PageViews: []multimodal.PageView{
					{URL: "/case-studies", Timestamp: at(24 * time.Hour), Duration: 240},
					{URL: "/features", Timestamp: at(24*time.Hour - 8*time.Minute), Duration: 200},
				},
				ClickEvents: []multimodal.ClickEvent{
					{Element: "case_study_download", Timestamp: at(24*time.Hour - 5*time.Minute)},
					{Element: "feature_comparison", Timestamp: at(24*time.Hour - 3*time.Minute)},
				},
				TimeSpent:            map[string]float64{"/case-studies": 240, "/features": 200},
				InteractionPatterns:  map[string]float64{"scroll_depth": 0.92, "click_through_rate": 0.68, "form_completion": 0},
				EngagementScore:      0.75,
				ConversionIndicators: []string{"resource_download"},
				Timestamp:            at(24 * time.Hour),
			},
		},
		Interaction: []multimodal.InteractionRecord{
			{
				ID:                fmt.Sprintf("interaction_%s_1", customerID),
				CustomerID:        customerID,
				Type:              "email",
				Direction:         "inbound",
				Timestamp:         at(24 * time.Hour),
				ResponseTime:      3600,
				SatisfactionScore: 0.8,
			},
			{
				ID:                fmt.Sprintf("interaction_%s_2", customerID),
				CustomerID:        customerID,
				Type:              "phone_call",
				Direction:         "outbound",
				Timestamp:         at(6 * time.Hour),
				ResponseTime:      0,
				SatisfactionScore: 0.9,
			},
		},
	}
}

// CollectText implements TextCollector.
func (d *DemoSource) CollectText(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.TextRecord, error) {
	return inRange(d.Records(customerID).Text, tr, func(r multimodal.TextRecord) time.Time { return r.Timestamp }), nil
}

// CollectVoice implements VoiceCollector.
func (d *DemoSource) CollectVoice(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.VoiceInsight, error) {
	return inRange(d.Records(customerID).Voice, tr, func(v multimodal.VoiceInsight) time.Time { return v.Timestamp }), nil
}

// CollectBehavior implements BehaviorCollector.
func (d *DemoSource) CollectBehavior(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.BehaviorSession, error) {
	return inRange(d.Records(customerID).Behavior, tr, func(b multimodal.BehaviorSession) time.Time { return b.Timestamp }), nil
}

// CollectInteraction implements InteractionCollector.
func (d *DemoSource) CollectInteraction(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.InteractionRecord, error) {
	return inRange(d.Records(customerID).Interaction, tr, func(i multimodal.InteractionRecord) time.Time { return i.Timestamp }), nil
}
