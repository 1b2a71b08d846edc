// Package fusion combines a customer's per-modality feature vectors into one
// fixed-size vector and derives quality, insights and anomalies from it.
package fusion

import (
	"context"
	"fmt"
	"time"

	"crm-value-server/pkg/config"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
)

// Stage is one step of the fusion pipeline.
type Stage interface {
	Name() string
	Process(ctx context.Context, state *State) error
}

// State carries one fusion run through the stages. Each run owns its state.
type State struct {
	CustomerID string
	Points     map[multimodal.Modality][]multimodal.DataPoint

	// Modalities lists the modalities with at least one point, in
	// canonical order.
	Modalities []multimodal.Modality
	Vectors    map[multimodal.Modality][multimodal.FusedDimension]float64
	Confidence map[multimodal.Modality]float64
	Weights    map[multimodal.Modality]float64

	Result *multimodal.FusionResult
}

// Engine runs the fusion stages in order.
type Engine struct {
	logger *logrus.Logger
	stages []Stage
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStages replaces the default stages.
func WithStages(stages ...Stage) Option {
	return func(e *Engine) { e.stages = stages }
}

// DefaultStages returns the standard pipeline for the given scoring
// configuration.
func DefaultStages(scoring config.Scoring) []Stage {
	return []Stage{
		NewVectorStage(),
		NewWeightStage(scoring.Fusion),
		NewCombineStage(),
		NewQualityStage(scoring.FusionAgreement),
		NewInsightStage(),
		NewAnomalyStage(),
	}
}

// NewEngine constructs a fusion engine with the default stages.
func NewEngine(logger *logrus.Logger, scoring config.Scoring, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		stages: DefaultStages(scoring),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fuse fuses the preprocessed points of one customer. Modalities without
// points are ignored; no points at all yields a zero vector. A failing or
// panicking stage aborts the run with a fatal error.
func (e *Engine) Fuse(ctx context.Context, customerID string, points map[multimodal.Modality][]multimodal.DataPoint) (result *multimodal.FusionResult, err error) {
	state := &State{
		CustomerID: customerID,
		Points:     points,
		Vectors:    make(map[multimodal.Modality][multimodal.FusedDimension]float64),
		Confidence: make(map[multimodal.Modality]float64),
		Weights:    make(map[multimodal.Modality]float64),
		Result: &multimodal.FusionResult{
			CustomerID:           customerID,
			Timestamp:            e.now(),
			InputModalities:      []multimodal.Modality{},
			ConfidenceByModality: make(map[multimodal.Modality]float64),
			Insights:             []string{},
			Anomalies:            []string{},
		},
	}
	for _, m := range multimodal.AllModalities() {
		if len(points[m]) > 0 {
			state.Modalities = append(state.Modalities, m)
		}
	}

	current := ""
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewFatal(customerID, fmt.Errorf("fusion stage %s panicked: %v", current, r))
			result = nil
		}
	}()

	for _, stage := range e.stages {
		current = stage.Name()
		if err := stage.Process(ctx, state); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"customer_id": customerID,
				"stage":       current,
			}).Error("Fusion stage failed")
			return nil, errors.NewFatal(customerID, err).WithField("stage", current)
		}
	}

	metrics.ObserveFusionQuality(state.Result.FusionQuality)
	e.logger.WithFields(logrus.Fields{
		"customer_id":    customerID,
		"modalities":     len(state.Modalities),
		"fusion_quality": state.Result.FusionQuality,
	}).Debug("Fused customer data")

	return state.Result, nil
}
