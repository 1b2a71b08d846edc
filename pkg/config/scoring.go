package config

import (
	"fmt"

	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"
)

// FusionWeights are the base weights of each modality in the fused vector.
type FusionWeights struct {
	Text        float64 `json:"text"`
	Voice       float64 `json:"voice"`
	Behavior    float64 `json:"behavior"`
	Interaction float64 `json:"interaction"`
}

// For returns the base weight of modality m.
func (w FusionWeights) For(m multimodal.Modality) float64 {
	switch m {
	case multimodal.ModalityText:
		return w.Text
	case multimodal.ModalityVoice:
		return w.Voice
	case multimodal.ModalityBehavior:
		return w.Behavior
	case multimodal.ModalityInteraction:
		return w.Interaction
	}
	return 0
}

// ValueWeights weight the per-modality value scores of a customer. Indicators
// sourced from text (transactional and demographic data) use Transactional,
// interaction indicators use Engagement.
type ValueWeights struct {
	Behavioral    float64 `json:"behavioral"`
	Transactional float64 `json:"transactional"`
	Engagement    float64 `json:"engagement"`
	Voice         float64 `json:"voice"`
}

// For returns the final-score weight of indicators sourced from modality m.
func (w ValueWeights) For(m multimodal.Modality) float64 {
	switch m {
	case multimodal.ModalityBehavior:
		return w.Behavioral
	case multimodal.ModalityText:
		return w.Transactional
	case multimodal.ModalityInteraction:
		return w.Engagement
	case multimodal.ModalityVoice:
		return w.Voice
	}
	return 0
}

// TierThresholds split profile scores into very_high, high, medium and low.
type TierThresholds struct {
	VeryHigh float64 `json:"very_high"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
}

// Tier names a score.
func (t TierThresholds) Tier(score float64) string {
	switch {
	case score >= t.VeryHigh:
		return "very_high"
	case score >= t.High:
		return "high"
	case score >= t.Medium:
		return "medium"
	default:
		return "low"
	}
}

// BehaviorTiers split behavior profile scores into high_value, medium_value and low_value.
type BehaviorTiers struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// Scoring holds every weight and threshold used by the scoring engines. It
// is passed by value and never modified after Load.
type Scoring struct {
	Fusion            FusionWeights  `json:"fusion"`
	Value             ValueWeights   `json:"value"`
	Tiers             TierThresholds `json:"tiers"`
	BehaviorTiers     BehaviorTiers  `json:"behavior_tiers"`
	HighValueMinScore float64        `json:"high_value_min_score"`

	// FusionAgreement stands in for cross-modal agreement in the fusion
	// quality score. Not configurable.
	FusionAgreement float64 `json:"fusion_agreement"`

	Tier1Cities         []string `json:"tier1_cities"`
	Tier2Cities         []string `json:"tier2_cities"`
	HighValueIndustries []string `json:"high_value_industries"`
}

// DefaultScoring returns the documented default weights and thresholds.
func DefaultScoring() Scoring {
	return Scoring{
		Fusion: FusionWeights{Text: 0.30, Voice: 0.25, Behavior: 0.35, Interaction: 0.10},
		Value:  ValueWeights{Behavioral: 0.35, Transactional: 0.25, Engagement: 0.20, Voice: 0.05},
		Tiers:  TierThresholds{VeryHigh: 0.85, High: 0.70, Medium: 0.50},
		BehaviorTiers: BehaviorTiers{
			High:   0.8,
			Medium: 0.5,
		},
		HighValueMinScore: 0.50,
		FusionAgreement:   0.8,
		Tier1Cities:       []string{"beijing", "shanghai", "guangzhou", "shenzhen", "北京", "上海", "广州", "深圳"},
		Tier2Cities: []string{
			"hangzhou", "nanjing", "chengdu", "wuhan", "xian", "suzhou",
			"杭州", "南京", "成都", "武汉", "西安", "苏州",
		},
		HighValueIndustries: []string{"finance", "technology", "healthcare", "manufacturing", "retail"},
	}
}

// Validate rejects weights outside [0,1], all-zero weight sets and
// thresholds out of order.
func (s Scoring) Validate() error {
	weights := map[string]float64{
		"FUSION_WEIGHT_TEXT":         s.Fusion.Text,
		"FUSION_WEIGHT_VOICE":        s.Fusion.Voice,
		"FUSION_WEIGHT_BEHAVIOR":     s.Fusion.Behavior,
		"FUSION_WEIGHT_INTERACTION":  s.Fusion.Interaction,
		"VALUE_WEIGHT_BEHAVIORAL":    s.Value.Behavioral,
		"VALUE_WEIGHT_TRANSACTIONAL": s.Value.Transactional,
		"VALUE_WEIGHT_ENGAGEMENT":    s.Value.Engagement,
		"VALUE_WEIGHT_VOICE":         s.Value.Voice,
		"HIGH_VALUE_MIN_SCORE":       s.HighValueMinScore,
	}
	for name, w := range weights {
		if w < 0 || w > 1 {
			return errors.NewInvalidInput(fmt.Sprintf("%s must be within [0,1]", name), map[string]interface{}{
				"value": w,
			})
		}
	}

	if s.Fusion.Text+s.Fusion.Voice+s.Fusion.Behavior+s.Fusion.Interaction == 0 {
		return errors.NewInvalidInput("fusion weights must not all be zero")
	}
	if s.Value.Behavioral+s.Value.Transactional+s.Value.Engagement+s.Value.Voice == 0 {
		return errors.NewInvalidInput("value weights must not all be zero")
	}

	if !(s.Tiers.VeryHigh >= s.Tiers.High && s.Tiers.High >= s.Tiers.Medium && s.Tiers.Medium >= 0 && s.Tiers.VeryHigh <= 1) {
		return errors.NewInvalidInput("tier thresholds must satisfy 0 <= medium <= high <= very_high <= 1")
	}
	if !(s.BehaviorTiers.High >= s.BehaviorTiers.Medium && s.BehaviorTiers.Medium >= 0 && s.BehaviorTiers.High <= 1) {
		return errors.NewInvalidInput("behavior tier thresholds must satisfy 0 <= medium <= high <= 1")
	}

	return nil
}
