// Package collector defines the data collaborators the orchestrator pulls raw
// customer records from, together with in-memory, file, Redis and demo
// implementations and a circuit-breaking wrapper.
package collector

import (
	"context"
	"time"

	"crm-value-server/pkg/multimodal"
)

// TextCollector returns a customer's written messages within a time range.
type TextCollector interface {
	CollectText(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.TextRecord, error)
}

// VoiceCollector returns a customer's analysed calls within a time range.
type VoiceCollector interface {
	CollectVoice(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.VoiceInsight, error)
}

// BehaviorCollector returns a customer's website sessions within a time range.
type BehaviorCollector interface {
	CollectBehavior(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.BehaviorSession, error)
}

// InteractionCollector returns a customer's logged touchpoints within a time range.
type InteractionCollector interface {
	CollectInteraction(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.InteractionRecord, error)
}

// CustomerDirectory looks up customer master data. Implementations return an
// error matching errors.ErrNotFound for unknown customers.
type CustomerDirectory interface {
	LookupCustomer(ctx context.Context, customerID string) (multimodal.Customer, error)
}

// CustomerLister enumerates every known customer.
type CustomerLister interface {
	ListCustomers(ctx context.Context) ([]multimodal.Customer, error)
}

// Source serves all four modalities.
type Source interface {
	TextCollector
	VoiceCollector
	BehaviorCollector
	InteractionCollector
}

// Sources bundles one collector per modality. A nil collector yields no
// records for its modality.
type Sources struct {
	Text        TextCollector
	Voice       VoiceCollector
	Behavior    BehaviorCollector
	Interaction InteractionCollector
}

// FromSource uses s for every modality.
func FromSource(s Source) Sources {
	return Sources{Text: s, Voice: s, Behavior: s, Interaction: s}
}

func inRange[T any](records []T, tr multimodal.TimeRange, ts func(T) time.Time) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if tr.Contains(ts(r)) {
			out = append(out, r)
		}
	}
	return out
}

// Result is the outcome of collecting one modality. Err is set when the
// collaborator failed; Records then holds nothing for that modality.
type Result struct {
	Modality multimodal.Modality
	Records  multimodal.RawRecords
	Err      error
}

// Collect fetches one modality from s. A missing collector yields an empty
// result.
func (s Sources) Collect(ctx context.Context, customerID string, m multimodal.Modality, tr multimodal.TimeRange) Result {
	res := Result{Modality: m}

	switch m {
	case multimodal.ModalityText:
		if s.Text != nil {
			res.Records.Text, res.Err = s.Text.CollectText(ctx, customerID, tr)
		}
	case multimodal.ModalityVoice:
		if s.Voice != nil {
			res.Records.Voice, res.Err = s.Voice.CollectVoice(ctx, customerID, tr)
		}
	case multimodal.ModalityBehavior:
		if s.Behavior != nil {
			res.Records.Behavior, res.Err = s.Behavior.CollectBehavior(ctx, customerID, tr)
		}
	case multimodal.ModalityInteraction:
		if s.Interaction != nil {
			res.Records.Interaction, res.Err = s.Interaction.CollectInteraction(ctx, customerID, tr)
		}
	}

	if res.Err != nil {
		res.Records = multimodal.RawRecords{}
	}
	return res
}

// Merge copies the records of r into dst.
func (r Result) Merge(dst *multimodal.RawRecords) {
	dst.Text = append(dst.Text, r.Records.Text...)
	dst.Voice = append(dst.Voice, r.Records.Voice...)
	dst.Behavior = append(dst.Behavior, r.Records.Behavior...)
	dst.Interaction = append(dst.Interaction, r.Records.Interaction...)
}
