package speech

import (
	"context"
	"sort"
	"sync"

	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
)

// ClipStore returns the audio clips recorded for a customer.
type ClipStore interface {
	Clips(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]Clip, error)
}

// MemoryClipStore keeps clips in memory, ordered by recording time.
type MemoryClipStore struct {
	mu    sync.RWMutex
	clips map[string][]Clip
}

// NewMemoryClipStore creates an empty clip store.
func NewMemoryClipStore() *MemoryClipStore {
	return &MemoryClipStore{clips: make(map[string][]Clip)}
}

// Add stores a clip under its customer.
func (s *MemoryClipStore) Add(clip Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.clips[clip.CustomerID], clip)
	sort.SliceStable(list, func(i, j int) bool { return list[i].RecordedAt.Before(list[j].RecordedAt) })
	s.clips[clip.CustomerID] = list
}

// Clips implements ClipStore.
func (s *MemoryClipStore) Clips(_ context.Context, customerID string, tr multimodal.TimeRange) ([]Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Clip, 0, len(s.clips[customerID]))
	for _, c := range s.clips[customerID] {
		if tr.Contains(c.RecordedAt) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Collector serves the voice modality by transcribing stored clips.
type Collector struct {
	store  ClipStore
	engine *Engine
	logger *logrus.Entry
}

// NewCollector creates a voice collector over store.
func NewCollector(store ClipStore, engine *Engine, logger *logrus.Logger) *Collector {
	return &Collector{
		store:  store,
		engine: engine,
		logger: logger.WithField("component", "speech_collector"),
	}
}

// CollectVoice transcribes every clip in range. Clips that cannot be
// transcribed are skipped; a failing store fails the whole call.
func (c *Collector) CollectVoice(ctx context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.VoiceInsight, error) {
	clips, err := c.store.Clips(ctx, customerID, tr)
	if err != nil {
		return nil, err
	}

	insights := make([]multimodal.VoiceInsight, 0, len(clips))
	for _, res := range c.engine.BatchTranscribe(ctx, clips) {
		if res.Err != nil {
			c.logger.WithError(res.Err).WithFields(logrus.Fields{
				"customer_id": customerID,
				"clip_id":     res.ClipID,
			}).Warn("Dropping untranscribable clip")
			continue
		}
		insights = append(insights, res.Insight)
	}

	c.logger.WithFields(logrus.Fields{
		"customer_id": customerID,
		"clips":       len(clips),
		"insights":    len(insights),
	}).Debug("Voice insights collected")

	return insights, nil
}
