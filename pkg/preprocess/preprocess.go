// Package preprocess converts raw per-modality records into DataPoints.
package preprocess

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/features"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/multimodal"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Preprocessor builds DataPoints with embedded feature vectors.
type Preprocessor struct {
	logger *logrus.Logger
	now    func() time.Time
}

// New creates a preprocessor. now stamps records that carry no timestamp
// and defaults to time.Now.
func New(logger *logrus.Logger, now func() time.Time) *Preprocessor {
	if now == nil {
		now = time.Now
	}
	return &Preprocessor{logger: logger, now: now}
}

// Process converts every record of raw into DataPoints grouped by modality.
// Malformed records are logged and dropped; every modality of raw that had
// records appears in the result even if all of them were dropped.
func (p *Preprocessor) Process(customerID string, raw multimodal.RawRecords) map[multimodal.Modality][]multimodal.DataPoint {
	out := make(map[multimodal.Modality][]multimodal.DataPoint, 4)

	for _, r := range raw.Text {
		p.keep(out, multimodal.ModalityText, customerID)(p.Text(customerID, r))
	}
	for _, v := range raw.Voice {
		p.keep(out, multimodal.ModalityVoice, customerID)(p.Voice(customerID, v))
	}
	for _, s := range raw.Behavior {
		p.keep(out, multimodal.ModalityBehavior, customerID)(p.Behavior(customerID, s))
	}
	for _, r := range raw.Interaction {
		p.keep(out, multimodal.ModalityInteraction, customerID)(p.Interaction(customerID, r))
	}

	return out
}

func (p *Preprocessor) keep(out map[multimodal.Modality][]multimodal.DataPoint, m multimodal.Modality, customerID string) func(multimodal.DataPoint, error) {
	if _, ok := out[m]; !ok {
		out[m] = nil
	}
	return func(dp multimodal.DataPoint, err error) {
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"customer_id": customerID,
				"modality":    m,
			}).Warn("Dropping malformed record")
			metrics.RecordPointDropped(string(m))
			return
		}
		out[m] = append(out[m], dp)
	}
}

// Text converts a text record.
func (p *Preprocessor) Text(customerID string, r multimodal.TextRecord) (multimodal.DataPoint, error) {
	if !utf8.ValidString(r.Content) {
		return multimodal.DataPoint{}, errors.NewMalformedRecord(string(multimodal.ModalityText), "content is not valid UTF-8")
	}

	vec := features.Text(r.Content)
	return p.point(customerID, r.CustomerID, multimodal.TextPayload{Record: r}, vec, features.TextQuality(r.Content), r.Timestamp,
		map[string]float64{
			"content_length": float64(utf8.RuneCountInString(r.Content)),
			"word_count":     float64(len(strings.Fields(r.Content))),
			"sentiment":      r.Sentiment.Code(),
		}), nil
}

// Voice converts a voice insight.
func (p *Preprocessor) Voice(customerID string, v multimodal.VoiceInsight) (multimodal.DataPoint, error) {
	if err := checkUnit(multimodal.ModalityVoice, "confidence", v.Confidence); err != nil {
		return multimodal.DataPoint{}, err
	}
	if err := checkNonNegative(multimodal.ModalityVoice, "speaking rate", v.SpeakingRate); err != nil {
		return multimodal.DataPoint{}, err
	}
	if err := checkNonNegative(multimodal.ModalityVoice, "pause frequency", v.PauseFrequency); err != nil {
		return multimodal.DataPoint{}, err
	}

	hasIntent := 0.0
	if v.HasIntent() {
		hasIntent = 1.0
	}
	vec := features.Voice(v)
	return p.point(customerID, v.CustomerID, multimodal.VoicePayload{Insight: v}, vec, features.VoiceQuality(v), v.Timestamp,
		map[string]float64{
			"transcript_length": float64(utf8.RuneCountInString(v.Transcript)),
			"confidence":        v.Confidence,
			"sentiment":         v.Sentiment.Code(),
			"speaking_rate":     v.SpeakingRate,
			"keywords_count":    float64(len(v.Keywords)),
			"has_intent":        hasIntent,
			"voice_quality_avg": vec[5],
		}), nil
}

// Behavior converts a behavior session.
func (p *Preprocessor) Behavior(customerID string, s multimodal.BehaviorSession) (multimodal.DataPoint, error) {
	if err := checkUnit(multimodal.ModalityBehavior, "engagement score", s.EngagementScore); err != nil {
		return multimodal.DataPoint{}, err
	}
	for _, page := range slices.Sorted(maps.Keys(s.TimeSpent)) {
		if err := checkNonNegative(multimodal.ModalityBehavior, "time spent on "+page, s.TimeSpent[page]); err != nil {
			return multimodal.DataPoint{}, err
		}
	}

	return p.point(customerID, s.CustomerID, multimodal.BehaviorPayload{Session: s}, features.Behavior(s), features.BehaviorQuality(s), s.Timestamp,
		map[string]float64{
			"page_views_count": float64(len(s.PageViews)),
			"clicks_count":     float64(len(s.ClickEvents)),
			"total_time_spent": s.TotalTimeSpent(),
			"engagement_score": s.EngagementScore,
			"conversion_count": float64(len(s.ConversionIndicators)),
		}), nil
}

// Interaction converts an interaction record.
func (p *Preprocessor) Interaction(customerID string, r multimodal.InteractionRecord) (multimodal.DataPoint, error) {
	if err := checkUnit(multimodal.ModalityInteraction, "satisfaction score", r.SatisfactionScore); err != nil {
		return multimodal.DataPoint{}, err
	}
	if err := checkNonNegative(multimodal.ModalityInteraction, "response time", r.ResponseTime); err != nil {
		return multimodal.DataPoint{}, err
	}

	inbound := 0.0
	if r.Inbound() {
		inbound = 1.0
	}
	return p.point(customerID, r.CustomerID, multimodal.InteractionPayload{Record: r}, features.Interaction(r), features.InteractionQuality(r), r.Timestamp,
		map[string]float64{
			"response_time":      r.ResponseTime,
			"satisfaction_score": r.SatisfactionScore,
			"inbound":            inbound,
			"channel":            features.ChannelCode(r.Type),
		}), nil
}

func (p *Preprocessor) point(customerID, recordCustomer string, payload multimodal.Payload, vec []float64, quality float64, ts time.Time, processed map[string]float64) multimodal.DataPoint {
	if customerID == "" {
		customerID = recordCustomer
	}
	if ts.IsZero() {
		ts = p.now()
	}
	return multimodal.DataPoint{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		Modality:      payload.Modality(),
		Payload:       payload,
		Processed:     processed,
		FeatureVector: vec,
		QualityScore:  quality,
		Timestamp:     ts,
	}
}

func checkUnit(m multimodal.Modality, field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return errors.NewMalformedRecord(string(m), fmt.Sprintf("%s %v outside [0,1]", field, v))
	}
	return nil
}

func checkNonNegative(m multimodal.Modality, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return errors.NewMalformedRecord(string(m), fmt.Sprintf("%s %v must be a non-negative number", field, v))
	}
	return nil
}
