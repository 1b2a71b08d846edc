package collector

import (
	"context"

	"crm-value-server/pkg/circuitbreaker"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/metrics"
	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
)

// Guarded routes every collaborator call through a per-modality circuit
// breaker. Failures and rejections surface as ErrCollectorUnavailable.
type Guarded struct {
	inner    Sources
	breakers *circuitbreaker.Manager
	logger   *logrus.Entry
}

// NewGuarded wraps inner with breakers taken from manager, one per modality.
func NewGuarded(inner Sources, manager *circuitbreaker.Manager, logger *logrus.Logger) *Guarded {
	return &Guarded{
		inner:    inner,
		breakers: manager,
		logger:   logger.WithField("component", "guarded_collector"),
	}
}

// Sources exposes the guarded collectors. Modalities without an inner
// collector stay nil.
func (g *Guarded) Sources() Sources {
	var out Sources
	if g.inner.Text != nil {
		out.Text = guardedText{g}
	}
	if g.inner.Voice != nil {
		out.Voice = guardedVoice{g}
	}
	if g.inner.Behavior != nil {
		out.Behavior = guardedBehavior{g}
	}
	if g.inner.Interaction != nil {
		out.Interaction = guardedInteraction{g}
	}
	return out
}

func (g *Guarded) call(ctx context.Context, m multimodal.Modality, customerID string, fn func(context.Context) error) error {
	err := g.breakers.Execute(ctx, string(m), fn)
	if err == nil {
		return nil
	}

	if circuitbreaker.IsOpenError(err) {
		metrics.RecordBreakerRejection(string(m))
		g.logger.WithFields(logrus.Fields{
			"modality":    m,
			"customer_id": customerID,
		}).Debug("Collector call rejected by open circuit")
	}
	if errors.IsErrorType(err, errors.ErrCollectorUnavailable) {
		return err
	}
	return errors.NewCollectorUnavailable(string(m), err, map[string]interface{}{
		"customer_id": customerID,
	})
}

type guardedText struct{ g *Guarded }

func (c guardedText) CollectText(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.TextRecord, error) {
	var out []multimodal.TextRecord
	err := c.g.call(ctx, multimodal.ModalityText, customerID, func(ctx context.Context) error {
		var err error
		out, err = c.g.inner.Text.CollectText(ctx, customerID, tr)
		return err
	})
	return out, err
}

type guardedVoice struct{ g *Guarded }

func (c guardedVoice) CollectVoice(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.VoiceInsight, error) {
	var out []multimodal.VoiceInsight
	err := c.g.call(ctx, multimodal.ModalityVoice, customerID, func(ctx context.Context) error {
		var err error
		out, err = c.g.inner.Voice.CollectVoice(ctx, customerID, tr)
		return err
	})
	return out, err
}

type guardedBehavior struct{ g *Guarded }

func (c guardedBehavior) CollectBehavior(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.BehaviorSession, error) {
	var out []multimodal.BehaviorSession
	err := c.g.call(ctx, multimodal.ModalityBehavior, customerID, func(ctx context.Context) error {
		var err error
		out, err = c.g.inner.Behavior.CollectBehavior(ctx, customerID, tr)
		return err
	})
	return out, err
}

type guardedInteraction struct{ g *Guarded }

func (c guardedInteraction) CollectInteraction(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.InteractionRecord, error) {
	var out []multimodal.InteractionRecord
	err := c.g.call(ctx, multimodal.ModalityInteraction, customerID, func(ctx context.Context) error {
		var err error
		out, err = c.g.inner.Interaction.CollectInteraction(ctx, customerID, tr)
		return err
	})
	return out, err
}
