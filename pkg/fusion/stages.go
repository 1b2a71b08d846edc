package fusion

import (
	"context"
	"math"

	"crm-value-server/pkg/config"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/stats"
)

// Insight and anomaly texts produced by the pipeline.
const (
	InsightPositiveText   = "Positive tone in written communication"
	InsightNegativeText   = "Negative tone in written communication"
	InsightClearVoice     = "Clear voice communication"
	InsightVoiceIntent    = "Explicit business intent expressed on calls"
	InsightHighEngagement = "High digital engagement"
	InsightConversion     = "Conversion behavior observed"
	InsightHighValue      = "Combined signals indicate a high-value prospect"
	InsightModerateIntent = "Moderate purchase intent"

	AnomalyUnstableEngagement = "Unstable engagement across sessions"
	AnomalyExcessiveBrowsing  = "Excessive browsing, possible automation"
	AnomalyLowAudioQuality    = "Low audio quality on calls"
	AnomalyFeatureOutlier     = "Outlier in fused features"
)

// Pad zero-pads or truncates vec to the fused dimension.
func Pad(vec []float64) [multimodal.FusedDimension]float64 {
	var out [multimodal.FusedDimension]float64
	copy(out[:], vec)
	return out
}

// VectorStage reduces each modality's points to one padded vector (the
// element-wise mean) and a confidence (the mean point quality).
type VectorStage struct{}

// NewVectorStage creates a vector stage.
func NewVectorStage() *VectorStage { return &VectorStage{} }

func (s *VectorStage) Name() string { return "vector" }

func (s *VectorStage) Process(_ context.Context, state *State) error {
	for _, m := range state.Modalities {
		points := state.Points[m]
		var sum [multimodal.FusedDimension]float64
		qualities := make([]float64, len(points))
		for i, p := range points {
			padded := Pad(p.FeatureVector)
			for j := range sum {
				sum[j] += padded[j]
			}
			qualities[i] = p.QualityScore
		}

		n := float64(len(points))
		for j := range sum {
			sum[j] /= n
		}
		state.Vectors[m] = sum
		state.Confidence[m] = stats.Unit(stats.Mean(qualities))
		state.Result.ConfidenceByModality[m] = state.Confidence[m]
	}
	state.Result.InputModalities = append(state.Result.InputModalities, state.Modalities...)
	return nil
}

// WeightStage weights each present modality by base weight × confidence,
// normalized to sum to 1. When every product is zero the base weights are
// normalized instead.
type WeightStage struct {
	base config.FusionWeights
}

// NewWeightStage creates a weight stage with the given base weights.
func NewWeightStage(base config.FusionWeights) *WeightStage {
	return &WeightStage{base: base}
}

func (s *WeightStage) Name() string { return "weight" }

func (s *WeightStage) Process(_ context.Context, state *State) error {
	state.Weights = Weights(s.base, state.Modalities, state.Confidence)
	return nil
}

// Weights computes normalized modality weights over the given modalities.
func Weights(base config.FusionWeights, modalities []multimodal.Modality, confidence map[multimodal.Modality]float64) map[multimodal.Modality]float64 {
	weights := make(map[multimodal.Modality]float64, len(modalities))
	var total float64
	for _, m := range modalities {
		w := base.For(m) * confidence[m]
		weights[m] = w
		total += w
	}
	if total == 0 {
		for _, m := range modalities {
			weights[m] = base.For(m)
			total += weights[m]
		}
	}
	if total == 0 {
		return weights
	}
	for m := range weights {
		weights[m] /= total
	}
	return weights
}

// CombineStage writes the weighted sum of the modality vectors.
type CombineStage struct{}

// NewCombineStage creates a combine stage.
func NewCombineStage() *CombineStage { return &CombineStage{} }

func (s *CombineStage) Name() string { return "combine" }

func (s *CombineStage) Process(_ context.Context, state *State) error {
	var fused [multimodal.FusedDimension]float64
	for _, m := range state.Modalities {
		vec := state.Vectors[m]
		w := state.Weights[m]
		for j := range fused {
			fused[j] += vec[j] * w
		}
	}
	state.Result.FusedFeatures = fused
	return nil
}

// QualityStage scores the fusion from modality coverage, mean confidence and
// a fixed cross-modal agreement term.
type QualityStage struct {
	agreement float64
}

// NewQualityStage creates a quality stage with the given agreement constant.
func NewQualityStage(agreement float64) *QualityStage {
	return &QualityStage{agreement: agreement}
}

func (s *QualityStage) Name() string { return "quality" }

func (s *QualityStage) Process(_ context.Context, state *State) error {
	state.Result.FusionQuality = Quality(state.Modalities, state.Confidence, s.agreement)
	return nil
}

// Quality is 0.4·coverage + 0.4·mean positive confidence + 0.2·agreement.
func Quality(modalities []multimodal.Modality, confidence map[multimodal.Modality]float64, agreement float64) float64 {
	coverage := float64(len(modalities)) / float64(len(multimodal.AllModalities()))

	var positive []float64
	for _, m := range modalities {
		if c := confidence[m]; c > 0 {
			positive = append(positive, c)
		}
	}

	return stats.Unit(0.4*coverage + 0.4*stats.Mean(positive) + 0.2*agreement)
}

// InsightStage applies the per-modality insight rules.
type InsightStage struct{}

// NewInsightStage creates an insight stage.
func NewInsightStage() *InsightStage { return &InsightStage{} }

func (s *InsightStage) Name() string { return "insight" }

func (s *InsightStage) Process(_ context.Context, state *State) error {
	r := state.Result

	if text := state.Points[multimodal.ModalityText]; len(text) > 0 {
		sentiment := stats.Mean(processed(text, "sentiment"))
		switch {
		case sentiment > 0.7:
			r.Insights = append(r.Insights, InsightPositiveText)
		case sentiment < 0.3:
			r.Insights = append(r.Insights, InsightNegativeText)
		}
	}

	if voice := state.Points[multimodal.ModalityVoice]; len(voice) > 0 {
		if stats.Mean(qualities(voice)) > 0.8 {
			r.Insights = append(r.Insights, InsightClearVoice)
		}
		if anyPositive(processed(voice, "has_intent")) {
			r.Insights = append(r.Insights, InsightVoiceIntent)
		}
	}

	if sessions := state.Points[multimodal.ModalityBehavior]; len(sessions) > 0 {
		if stats.Mean(processed(sessions, "engagement_score")) > 0.8 {
			r.Insights = append(r.Insights, InsightHighEngagement)
		}
		if anyPositive(processed(sessions, "conversion_count")) {
			r.Insights = append(r.Insights, InsightConversion)
		}
	}

	switch overall := stats.Mean(r.FusedFeatures[:]); {
	case overall > 0.7:
		r.Insights = append(r.Insights, InsightHighValue)
	case overall > 0.5:
		r.Insights = append(r.Insights, InsightModerateIntent)
	}
	return nil
}

// AnomalyStage flags unstable engagement, bot-like browsing, poor audio and
// outliers in the fused vector.
type AnomalyStage struct{}

// NewAnomalyStage creates an anomaly stage.
func NewAnomalyStage() *AnomalyStage { return &AnomalyStage{} }

func (s *AnomalyStage) Name() string { return "anomaly" }

func (s *AnomalyStage) Process(_ context.Context, state *State) error {
	r := state.Result

	if sessions := state.Points[multimodal.ModalityBehavior]; len(sessions) > 0 {
		if len(sessions) > 1 && stats.StdDev(processed(sessions, "engagement_score")) > 0.3 {
			r.Anomalies = append(r.Anomalies, AnomalyUnstableEngagement)
		}
		for _, pv := range processed(sessions, "page_views_count") {
			if pv > 50 {
				r.Anomalies = append(r.Anomalies, AnomalyExcessiveBrowsing)
				break
			}
		}
	}

	if voice := state.Points[multimodal.ModalityVoice]; len(voice) > 0 {
		if stats.Mean(qualities(voice)) < 0.5 {
			r.Anomalies = append(r.Anomalies, AnomalyLowAudioQuality)
		}
	}

	mean, std := stats.MeanStdDev(r.FusedFeatures[:])
	for _, x := range r.FusedFeatures {
		if math.Abs(x-mean) > 2*std {
			r.Anomalies = append(r.Anomalies, AnomalyFeatureOutlier)
			break
		}
	}
	return nil
}

func processed(points []multimodal.DataPoint, key string) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, p.Processed[key])
	}
	return out
}

func qualities(points []multimodal.DataPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.QualityScore
	}
	return out
}

func anyPositive(xs []float64) bool {
	for _, x := range xs {
		if x > 0 {
			return true
		}
	}
	return false
}
