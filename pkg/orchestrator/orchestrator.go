// Package orchestrator runs the customer value pipeline: collect raw records
// per modality, preprocess, fuse, dispatch by analysis type and synthesize
// recommendations. Single requests and concurrent batches are supported.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crm-value-server/pkg/collector"
	"crm-value-server/pkg/config"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/fusion"
	"crm-value-server/pkg/highvalue"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/multimodal"
	"crm-value-server/pkg/preprocess"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ResultSink receives every finished analysis, e.g. an AMQP publisher.
type ResultSink interface {
	PublishResult(ctx context.Context, result *multimodal.AnalysisResult) error
}

// Orchestrator coordinates one analysis per customer. It holds no per-request
// state and is safe for concurrent use.
type Orchestrator struct {
	logger  *logrus.Logger
	scoring config.Scoring
	sources collector.Sources

	directory collector.CustomerDirectory
	sink      ResultSink

	preprocessor *preprocess.Preprocessor
	fusion       *fusion.Engine
	highValue    *highvalue.Service

	fusionOpts       []fusion.Option
	batchConcurrency int
	lookback         time.Duration
	now              func() time.Time
	newID            func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDirectory sets the customer master data lookup.
func WithDirectory(d collector.CustomerDirectory) Option {
	return func(o *Orchestrator) { o.directory = d }
}

// WithSink publishes every finished result to sink.
func WithSink(sink ResultSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithBatchConcurrency bounds the number of customers analysed at once.
func WithBatchConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchConcurrency = n
		}
	}
}

// WithLookback sets the time range used when a request carries none.
func WithLookback(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lookback = d
		}
	}
}

// WithClock sets the clock for every component.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRequestIDs replaces the request ID generator.
func WithRequestIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithFusionOptions passes options through to the fusion engine.
func WithFusionOptions(opts ...fusion.Option) Option {
	return func(o *Orchestrator) { o.fusionOpts = append(o.fusionOpts, opts...) }
}

// New creates an orchestrator over sources.
func New(logger *logrus.Logger, scoring config.Scoring, sources collector.Sources, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:           logger,
		scoring:          scoring,
		sources:          sources,
		batchConcurrency: 8,
		lookback:         30 * 24 * time.Hour,
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.preprocessor = preprocess.New(logger, o.now)
	o.fusion = fusion.NewEngine(logger, scoring, append([]fusion.Option{fusion.WithClock(o.now)}, o.fusionOpts...)...)
	o.highValue = highvalue.NewService(logger, scoring, highvalue.WithClock(o.now))
	return o
}

// HighValue exposes the value indicator aggregator used for profiles.
func (o *Orchestrator) HighValue() *highvalue.Service {
	return o.highValue
}

// Analyze runs the full pipeline for one request. Collection failures only
// empty their modality; an unknown analysis type yields an error-bearing
// result with zero confidence. Only internal failures are returned as errors.
func (o *Orchestrator) Analyze(ctx context.Context, req multimodal.AnalysisRequest) (*multimodal.AnalysisResult, error) {
	start := time.Now()

	if req.CustomerID == "" {
		return nil, errors.NewInvalidInput("customer_id is required")
	}

	modalities := uniqueModalities(req.Modalities)
	if len(modalities) == 0 {
		modalities = multimodal.AllModalities()
	}
	tr := req.TimeRange
	if tr.Start.IsZero() && tr.End.IsZero() {
		now := o.now()
		tr = multimodal.TimeRange{Start: now.Add(-o.lookback), End: now}
	}

	logger := o.logger.WithFields(logrus.Fields{
		"customer_id":   req.CustomerID,
		"analysis_type": req.AnalysisType,
	})
	logger.Info("Starting customer analysis")

	raw := o.collect(ctx, req.CustomerID, modalities, tr)
	points := o.preprocessor.Process(req.CustomerID, raw)

	fused, err := o.fusion.Fuse(ctx, req.CustomerID, points)
	if err != nil {
		metrics.RecordAnalysis(metricsType(req.AnalysisType), "error", time.Since(start))
		return nil, err
	}

	results, supported, profile, err := o.score(ctx, req, points, fused)
	if err != nil {
		metrics.RecordAnalysis(metricsType(req.AnalysisType), "error", time.Since(start))
		return nil, err
	}

	confidence := fused.FusionQuality
	status := "success"
	if !supported {
		confidence = 0
		status = "unsupported"
		logger.WithError(errors.NewUnsupportedAnalysis(req.AnalysisType)).Warn("Returning error result")
	}

	result := &multimodal.AnalysisResult{
		RequestID:        o.newID(),
		CustomerID:       req.CustomerID,
		AnalysisType:     req.AnalysisType,
		Results:          results,
		Fusion:           fused,
		HighValueProfile: profile,
		Recommendations:  recommendations(results, fused, profile),
		Confidence:       confidence,
		ProcessingTime:   time.Since(start).Seconds(),
		CreatedAt:        o.now(),
	}

	metrics.RecordAnalysis(metricsType(req.AnalysisType), status, time.Since(start))
	logger.WithFields(logrus.Fields{
		"request_id":      result.RequestID,
		"confidence":      result.Confidence,
		"processing_time": result.ProcessingTime,
	}).Info("Customer analysis finished")

	if o.sink != nil {
		if err := o.sink.PublishResult(ctx, result); err != nil {
			logger.WithError(err).Warn("Failed to publish analysis result")
		}
	}

	return result, nil
}

// score dispatches the analysis strategy and, for high-value requests,
// builds the value profile. Panics become fatal errors.
func (o *Orchestrator) score(ctx context.Context, req multimodal.AnalysisRequest, points map[multimodal.Modality][]multimodal.DataPoint, fused *multimodal.FusionResult) (results map[string]interface{}, supported bool, profile *multimodal.CustomerValueProfile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewFatal(req.CustomerID, fmt.Errorf("scoring panicked: %v", r))
		}
	}()

	results, supported = dispatch(req.AnalysisType, fused)

	if req.AnalysisType == multimodal.AnalysisHighValue {
		customer := o.customer(ctx, req.CustomerID)
		sessions := multimodal.BehaviorSessions(points[multimodal.ModalityBehavior])
		voice := multimodal.VoiceInsights(points[multimodal.ModalityVoice])
		for i := range sessions {
			sessions[i].CustomerID = customer.ID
		}
		for i := range voice {
			voice[i].CustomerID = customer.ID
		}

		// the collection range already bounds the records
		profiles := o.highValue.IdentifyHighValueCustomers([]multimodal.Customer{customer}, sessions, voice, 0)
		if len(profiles) > 0 {
			profile = profiles[0]
		}
	}
	return results, supported, profile, nil
}

func (o *Orchestrator) customer(ctx context.Context, customerID string) multimodal.Customer {
	if o.directory == nil {
		return multimodal.DefaultCustomer(customerID)
	}

	c, err := o.directory.LookupCustomer(ctx, customerID)
	if err != nil {
		if !errors.IsErrorType(err, errors.ErrNotFound) {
			o.logger.WithError(err).WithField("customer_id", customerID).Warn("Customer lookup failed, using default master data")
		}
		return multimodal.DefaultCustomer(customerID)
	}
	if c.ID == "" {
		c.ID = customerID
	}
	return c
}

// collect fetches every requested modality concurrently. A failing or
// panicking collaborator leaves its modality empty.
func (o *Orchestrator) collect(ctx context.Context, customerID string, modalities []multimodal.Modality, tr multimodal.TimeRange) multimodal.RawRecords {
	results := make([]collector.Result, len(modalities))

	var g errgroup.Group
	for i, m := range modalities {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = collector.Result{
						Modality: m,
						Err:      errors.NewCollectorUnavailable(string(m), fmt.Errorf("collector panicked: %v", r)),
					}
				}
			}()
			results[i] = o.sources.Collect(ctx, customerID, m, tr)
			return nil
		})
	}
	_ = g.Wait()

	var raw multimodal.RawRecords
	for _, res := range results {
		if res.Err != nil {
			metrics.RecordCollectionFailure(string(res.Modality))
			o.logger.WithError(res.Err).WithFields(logrus.Fields{
				"customer_id": customerID,
				"modality":    res.Modality,
			}).Warn("Collection failed, continuing without modality")
			continue
		}
		res.Merge(&raw)
	}
	return raw
}

// BatchAnalyze analyses every customer concurrently over all modalities and
// the default lookback. The result only holds customers whose analysis
// succeeded; failures are logged and never abort the batch.
func (o *Orchestrator) BatchAnalyze(ctx context.Context, customerIDs []string, analysisType string) map[string]*multimodal.AnalysisResult {
	var (
		mu      sync.Mutex
		results = make(map[string]*multimodal.AnalysisResult, len(customerIDs))
		seen    = make(map[string]bool, len(customerIDs))
	)

	var g errgroup.Group
	g.SetLimit(o.batchConcurrency)

	for _, id := range customerIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		g.Go(func() error {
			res, err := o.Analyze(ctx, multimodal.AnalysisRequest{
				CustomerID:   id,
				AnalysisType: analysisType,
				Modalities:   multimodal.AllModalities(),
			})
			if err != nil {
				metrics.RecordBatchFailure()
				o.logger.WithError(err).WithField("customer_id", id).Error("Customer analysis failed in batch")
				return nil
			}

			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	o.logger.WithFields(logrus.Fields{
		"analysis_type": analysisType,
		"succeeded":     len(results),
		"requested":     len(seen),
	}).Info("Batch analysis finished")

	return results
}

// RunPipeline runs several analysis types for one customer in order over
// the last 30 days. Types that fail are skipped.
func (o *Orchestrator) RunPipeline(ctx context.Context, customerID string, modalities []multimodal.Modality, analysisTypes []string) []*multimodal.AnalysisResult {
	tr := multimodal.LastDays(o.now(), 30)

	out := make([]*multimodal.AnalysisResult, 0, len(analysisTypes))
	for _, t := range analysisTypes {
		res, err := o.Analyze(ctx, multimodal.AnalysisRequest{
			CustomerID:   customerID,
			AnalysisType: t,
			Modalities:   modalities,
			TimeRange:    tr,
		})
		if err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{
				"customer_id":   customerID,
				"analysis_type": t,
			}).Error("Pipeline step failed")
			continue
		}
		out = append(out, res)
	}
	return out
}

// uniqueModalities drops repeated modalities, keeping first occurrences in order.
func uniqueModalities(in []multimodal.Modality) []multimodal.Modality {
	seen := make(map[multimodal.Modality]bool, len(in))
	out := make([]multimodal.Modality, 0, len(in))
	for _, m := range in {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func metricsType(analysisType string) string {
	if isSupported(analysisType) {
		return analysisType
	}
	return "unsupported"
}
