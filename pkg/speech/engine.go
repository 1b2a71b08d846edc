// Package speech is a stand-in speech recognition and sentiment engine. It
// derives a VoiceInsight deterministically from the audio payload so the rest
// of the pipeline can run without a transcription vendor.
package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
)

// MaxAudioSize is the largest accepted audio payload in bytes.
const MaxAudioSize = 50 * 1024 * 1024

var supportedFormats = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"flac": true,
	"m4a":  true,
}

// IsSupportedFormat reports whether Transcribe accepts format, given without
// a leading dot.
func IsSupportedFormat(format string) bool {
	return supportedFormats[strings.ToLower(format)]
}

var (
	positiveWords = []string{"good", "great", "excellent", "satisfied", "like", "need", "want"}
	negativeWords = []string{"not good", "bad", "unsatisfied", "problem", "difficult", "worried"}

	businessKeywords = []string{
		"CRM", "system", "customer", "manage", "sales", "product", "solution",
		"budget", "company", "employee", "manufacturing", "efficiency", "track",
	}
)

// intentPatterns are checked in order; the first match wins.
var intentPatterns = []struct {
	intent   string
	patterns []string
}{
	{"product_inquiry", []string{"product", "introduce", "learn", "what"}},
	{"price_inquiry", []string{"price", "cost", "budget", "how much"}},
	{"demo_request", []string{"demo", "trial", "take a look", "try"}},
	{"technical_support", []string{"technical", "support", "problem", "help"}},
	{"purchase_intent", []string{"purchase", "procure", "need", "want"}},
}

// Engine turns audio clips into voice insights.
type Engine struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewEngine creates a speech engine. A nil clock uses time.Now.
func NewEngine(logger *logrus.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{logger: logger, now: now}
}

// Name returns the provider name
func (e *Engine) Name() string {
	return "mock"
}

// Transcribe analyses one audio clip. format must be wav, mp3, flac or m4a
// and the payload at most MaxAudioSize bytes.
func (e *Engine) Transcribe(ctx context.Context, audio []byte, format string) (multimodal.VoiceInsight, error) {
	if err := ctx.Err(); err != nil {
		return multimodal.VoiceInsight{}, err
	}

	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if !supportedFormats[format] {
		return multimodal.VoiceInsight{}, errors.NewInvalidInput(fmt.Sprintf("unsupported audio format: %s", format))
	}
	if len(audio) > MaxAudioSize {
		return multimodal.VoiceInsight{}, errors.NewInvalidInput("audio payload too large", map[string]interface{}{
			"size":     len(audio),
			"max_size": MaxAudioSize,
		})
	}

	n := len(audio)
	transcript := transcriptFor(n)
	sentiment, emotion := analyzeSentiment(transcript)

	insight := multimodal.VoiceInsight{
		Transcript:     transcript,
		Confidence:     min(0.95, 0.7+float64(n)/10000*0.2),
		Sentiment:      sentiment,
		Emotion:        emotion,
		SpeakingRate:   120 + float64(n%100),
		PauseFrequency: 0.1 + float64(n%50)/500,
		VoiceQuality: map[string]float64{
			"clarity":         0.8 + float64(n%20)/100,
			"volume":          0.7 + float64(n%30)/100,
			"pitch_stability": 0.85 + float64(n%15)/100,
		},
		Keywords:  extractKeywords(transcript),
		Intent:    detectIntent(transcript),
		Timestamp: e.now(),
	}

	e.logger.WithFields(logrus.Fields{
		"format":     format,
		"size":       n,
		"confidence": insight.Confidence,
		"sentiment":  insight.Sentiment,
		"intent":     insight.Intent,
	}).Debug("Audio transcribed")

	return insight, nil
}

// Clip is one stored audio recording.
type Clip struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Format     string    `json:"format"`
	Data       []byte    `json:"data"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BatchResult pairs a clip with its insight or the reason it failed.
type BatchResult struct {
	ClipID  string
	Insight multimodal.VoiceInsight
	Err     error
}

// BatchTranscribe transcribes clips in order. A failed clip does not stop
// the batch.
func (e *Engine) BatchTranscribe(ctx context.Context, clips []Clip) []BatchResult {
	results := make([]BatchResult, 0, len(clips))
	for _, clip := range clips {
		insight, err := e.Transcribe(ctx, clip.Data, clip.Format)
		if err != nil {
			e.logger.WithError(err).WithField("clip_id", clip.ID).Error("Failed to transcribe audio clip")
		} else {
			insight.CustomerID = clip.CustomerID
			if !clip.RecordedAt.IsZero() {
				insight.Timestamp = clip.RecordedAt
			}
		}
		results = append(results, BatchResult{ClipID: clip.ID, Insight: insight, Err: err})
	}
	return results
}

// QualityReport is the outcome of ValidateAudioQuality.
type QualityReport struct {
	Score           float64  `json:"quality_score"`
	Valid           bool     `json:"is_valid"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// ValidateAudioQuality estimates whether a clip is usable.
func (e *Engine) ValidateAudioQuality(audio []byte) QualityReport {
	n := len(audio)
	score := min(1.0, float64(n)/5000)

	report := QualityReport{
		Score:  score,
		Valid:  score >= 0.3,
		Issues: []string{},
	}
	if n < 1000 {
		report.Issues = append(report.Issues, "audio too short")
	}
	if score < 0.5 {
		report.Issues = append(report.Issues, "low audio quality")
	}

	report.Recommendations = []string{}
	if len(report.Issues) > 0 {
		report.Recommendations = []string{
			"use a clear recording device",
			"record in a quiet environment",
			"speak clearly and slowly",
		}
	}
	return report
}

func transcriptFor(size int) string {
	switch {
	case size < 1000:
		return "Hello, I would like to learn about your product."
	case size < 5000:
		return "Our company is looking for a CRM system, could you introduce your solution? Our budget is around 500k."
	default:
		return "I am the purchasing manager at ABC company and we need a system to manage customer relationships. " +
			"We have more than 200 employees, mostly in manufacturing. " +
			"We hope the system helps us track customers better and improve sales efficiency."
	}
}

func analyzeSentiment(text string) (multimodal.Sentiment, string) {
	lower := strings.ToLower(text)
	positive := countMatches(lower, positiveWords)
	negative := countMatches(lower, negativeWords)

	switch {
	case positive > negative:
		return multimodal.SentimentPositive, "interested"
	case negative > positive:
		return multimodal.SentimentNegative, "concerned"
	default:
		return multimodal.SentimentNeutral, "neutral"
	}
}

func countMatches(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func extractKeywords(text string) []string {
	lower := strings.ToLower(text)
	found := []string{}
	for _, k := range businessKeywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			found = append(found, k)
		}
		if len(found) == 10 {
			break
		}
	}
	return found
}

func detectIntent(text string) string {
	lower := strings.ToLower(text)
	for _, p := range intentPatterns {
		for _, pattern := range p.patterns {
			if strings.Contains(lower, pattern) {
				return p.intent
			}
		}
	}
	return ""
}
