package speech

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crm-value-server/pkg/collector"
	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(logrus.New(), func() time.Time { return fixedNow })
}

func TestTranscribeShortClip(t *testing.T) {
	e := newTestEngine()

	insight, err := e.Transcribe(context.Background(), make([]byte, 500), "wav")
	require.NoError(t, err)

	assert.Equal(t, "Hello, I would like to learn about your product.", insight.Transcript)
	assert.InDelta(t, 0.71, insight.Confidence, 1e-9)
	assert.Equal(t, 120.0, insight.SpeakingRate)
	assert.InDelta(t, 0.1, insight.PauseFrequency, 1e-9)
	assert.InDelta(t, 0.8, insight.VoiceQuality["clarity"], 1e-9)
	assert.InDelta(t, 0.9, insight.VoiceQuality["volume"], 1e-9)
	assert.InDelta(t, 0.9, insight.VoiceQuality["pitch_stability"], 1e-9)
	assert.Equal(t, multimodal.SentimentPositive, insight.Sentiment)
	assert.Equal(t, "interested", insight.Emotion)
	assert.Equal(t, []string{"product"}, insight.Keywords)
	assert.Equal(t, "product_inquiry", insight.Intent)
	assert.Equal(t, fixedNow, insight.Timestamp)
}

func TestTranscribeIsDeterministic(t *testing.T) {
	e := newTestEngine()
	audio := make([]byte, 3210)

	a, err := e.Transcribe(context.Background(), audio, "MP3")
	require.NoError(t, err)
	b, err := e.Transcribe(context.Background(), audio, ".mp3")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, multimodal.SentimentNeutral, a.Sentiment)
	assert.Contains(t, a.Keywords, "budget")
	assert.Equal(t, "product_inquiry", a.Intent, "introduce matches before budget")
}

func TestTranscribeCapsConfidence(t *testing.T) {
	insight, err := newTestEngine().Transcribe(context.Background(), make([]byte, 20000), "flac")
	require.NoError(t, err)
	assert.Equal(t, 0.95, insight.Confidence)
	assert.Contains(t, insight.Keywords, "manufacturing")
}

func TestTranscribeRejectsInvalidInput(t *testing.T) {
	e := newTestEngine()

	_, err := e.Transcribe(context.Background(), []byte{1, 2, 3}, "ogg")
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))

	_, err = e.Transcribe(context.Background(), make([]byte, MaxAudioSize+1), "wav")
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Transcribe(ctx, []byte{1}, "wav")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateAudioQuality(t *testing.T) {
	e := newTestEngine()

	short := e.ValidateAudioQuality(make([]byte, 500))
	assert.InDelta(t, 0.1, short.Score, 1e-9)
	assert.False(t, short.Valid)
	assert.Len(t, short.Issues, 2)
	assert.Len(t, short.Recommendations, 3)

	good := e.ValidateAudioQuality(make([]byte, 6000))
	assert.Equal(t, 1.0, good.Score)
	assert.True(t, good.Valid)
	assert.Empty(t, good.Issues)
	assert.Empty(t, good.Recommendations)
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("wav"))
	assert.True(t, IsSupportedFormat("FLAC"))
	assert.False(t, IsSupportedFormat("ogg"))
	assert.False(t, IsSupportedFormat(".mp3"))
}

func TestCollectorSkipsBadClips(t *testing.T) {
	store := NewMemoryClipStore()
	store.Add(Clip{ID: "late", CustomerID: "acme", Format: "wav", Data: make([]byte, 800), RecordedAt: fixedNow.Add(-time.Hour)})
	store.Add(Clip{ID: "early", CustomerID: "acme", Format: "m4a", Data: make([]byte, 6000), RecordedAt: fixedNow.Add(-48 * time.Hour)})
	store.Add(Clip{ID: "bad", CustomerID: "acme", Format: "ogg", Data: []byte{1}, RecordedAt: fixedNow.Add(-2 * time.Hour)})
	store.Add(Clip{ID: "old", CustomerID: "acme", Format: "wav", Data: []byte{1}, RecordedAt: fixedNow.AddDate(0, 0, -60)})

	var voice collector.VoiceCollector = NewCollector(store, newTestEngine(), logrus.New())
	insights, err := voice.CollectVoice(context.Background(), "acme", multimodal.LastDays(fixedNow, 30))
	require.NoError(t, err)

	require.Len(t, insights, 2)
	assert.Equal(t, fixedNow.Add(-48*time.Hour), insights[0].Timestamp)
	assert.Equal(t, fixedNow.Add(-time.Hour), insights[1].Timestamp)
	assert.Equal(t, "acme", insights[0].CustomerID)
}

type failingStore struct{}

func (failingStore) Clips(context.Context, string, multimodal.TimeRange) ([]Clip, error) {
	return nil, fmt.Errorf("object storage unreachable")
}

func TestCollectorPropagatesStoreFailure(t *testing.T) {
	c := NewCollector(failingStore{}, newTestEngine(), logrus.New())
	_, err := c.CollectVoice(context.Background(), "acme", multimodal.TimeRange{})
	assert.Error(t, err)
}
