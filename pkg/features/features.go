// Package features turns one raw record of each modality into a short
// normalized feature vector and a quality score.
//
// The normalization caps are fixed so that scores are reproducible:
//
//	text:        [runes/1000, words/200, '?'/10, '!'/10, longWords/50], each capped at 1
//	voice:       [confidence, rate/200, pauses, sentiment, keywords/10, meanQuality, intent]
//	behavior:    [engagement, pageViews/20, clicks/50, hours, conversions/5, scroll, ctr]
//	interaction: [satisfaction, inbound, min(1, response/3600), channel]
package features

import (
	"strings"
	"unicode/utf8"

	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"
)

// Vector lengths per modality before fusion padding.
const (
	TextLen        = 5
	VoiceLen       = 7
	BehaviorLen    = 7
	InteractionLen = 4
)

// Indexes into the behavior vector used by the fusion rules.
const (
	BehaviorEngagement  = 0
	BehaviorPageViews   = 1
	BehaviorConversions = 4
)

var textCaps = [TextLen]float64{1000, 200, 10, 10, 50}

// Text extracts the text feature vector of content.
func Text(content string) []float64 {
	words := strings.Fields(content)
	long := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) > 6 {
			long++
		}
	}

	raw := [TextLen]float64{
		float64(utf8.RuneCountInString(content)),
		float64(len(words)),
		float64(strings.Count(content, "?")),
		float64(strings.Count(content, "!")),
		float64(long),
	}

	out := make([]float64, TextLen)
	for i, v := range raw {
		out[i] = min(1.0, v/textCaps[i])
	}
	return out
}

// TextQuality averages a length score and a sentence completeness score.
// Empty content has quality 0.
func TextQuality(content string) float64 {
	if content == "" {
		return 0
	}
	length := min(1.0, float64(utf8.RuneCountInString(content))/100)
	completeness := 0.8
	trimmed := strings.TrimSpace(content)
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
		completeness = 1.0
	}
	return stats.Unit((length + completeness) / 2)
}

// Voice extracts the voice feature vector of an insight.
func Voice(v multimodal.VoiceInsight) []float64 {
	quality := 0.5
	if len(v.VoiceQuality) > 0 {
		quality = stats.Mean(multimodal.SortedValues(v.VoiceQuality))
	}

	intent := 0.0
	if v.HasIntent() {
		intent = 1.0
	}

	return []float64{
		v.Confidence,
		v.SpeakingRate / 200.0,
		v.PauseFrequency,
		v.Sentiment.Code(),
		float64(len(v.Keywords)) / 10.0,
		quality,
		intent,
	}
}

// VoiceQuality is the transcription confidence.
func VoiceQuality(v multimodal.VoiceInsight) float64 {
	return stats.Unit(v.Confidence)
}

// Behavior extracts the behavior feature vector of a session. Missing
// scroll_depth and click_through_rate patterns default to 0.5.
func Behavior(s multimodal.BehaviorSession) []float64 {
	return []float64{
		s.EngagementScore,
		float64(len(s.PageViews)) / 20.0,
		float64(len(s.ClickEvents)) / 50.0,
		s.TotalTimeSpent() / 3600.0,
		float64(len(s.ConversionIndicators)) / 5.0,
		s.Pattern("scroll_depth", 0.5),
		s.Pattern("click_through_rate", 0.5),
	}
}

// BehaviorQuality is the session engagement score.
func BehaviorQuality(s multimodal.BehaviorSession) float64 {
	return stats.Unit(s.EngagementScore)
}

// Interaction extracts the interaction feature vector of a record.
func Interaction(r multimodal.InteractionRecord) []float64 {
	inbound := 0.0
	if r.Inbound() {
		inbound = 1.0
	}
	return []float64{
		r.SatisfactionScore,
		inbound,
		min(1.0, r.ResponseTime/3600.0),
		ChannelCode(r.Type),
	}
}

// InteractionQuality is the satisfaction score of the interaction.
func InteractionQuality(r multimodal.InteractionRecord) float64 {
	return stats.Unit(r.SatisfactionScore)
}

// ChannelCode maps an interaction type onto {phone 1.0, email 0.5, other 0}.
func ChannelCode(kind string) float64 {
	switch strings.ToLower(kind) {
	case "phone", "phone_call", "call":
		return 1.0
	case "email":
		return 0.5
	default:
		return 0.0
	}
}
