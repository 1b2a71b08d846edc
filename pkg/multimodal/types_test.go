package multimodal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModalities(t *testing.T) {
	all, err := ParseModalities("")
	require.NoError(t, err)
	assert.Equal(t, AllModalities(), all)

	ms, err := ParseModalities(" Voice,behavior,voice ")
	require.NoError(t, err)
	assert.Equal(t, []Modality{ModalityVoice, ModalityBehavior}, ms)

	_, err = ParseModalities("text,video")
	assert.Error(t, err)
}

func TestSortedValues(t *testing.T) {
	m := map[string]float64{"volume": 0.7, "clarity": 0.9, "pitch": 0.8}
	assert.Equal(t, []float64{0.9, 0.8, 0.7}, SortedValues(m))
	assert.Empty(t, SortedValues(nil))

	s := BehaviorSession{TimeSpent: map[string]float64{"/b": 0.1, "/a": 0.2, "/c": 0.3}}
	assert.Equal(t, (0.2+0.1)+0.3, s.TotalTimeSpent())
}

func TestSentimentCode(t *testing.T) {
	assert.Equal(t, 1.0, SentimentPositive.Code())
	assert.Equal(t, 0.5, SentimentNeutral.Code())
	assert.Equal(t, 0.0, SentimentNegative.Code())
	assert.Equal(t, 0.5, Sentiment("mixed").Code())
}

func TestTimeRangeContains(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := LastDays(now, 30)

	assert.True(t, r.Contains(now))
	assert.True(t, r.Contains(now.AddDate(0, 0, -30)))
	assert.False(t, r.Contains(now.AddDate(0, 0, -31)))
	assert.False(t, r.Contains(now.Add(time.Second)))
	assert.True(t, TimeRange{}.Contains(now.AddDate(-10, 0, 0)))
}

func TestSessionHelpers(t *testing.T) {
	s := BehaviorSession{
		TimeSpent:           map[string]float64{"/a": 30, "/b": 90},
		InteractionPatterns: map[string]float64{"scroll_depth": 0.8},
	}
	assert.Equal(t, 120.0, s.TotalTimeSpent())
	assert.Equal(t, 0.8, s.Pattern("scroll_depth", 0.5))
	assert.Equal(t, 0.5, s.Pattern("click_through_rate", 0.5))
}

func TestPayloadMappings(t *testing.T) {
	points := []DataPoint{
		{CustomerID: "c-1", Modality: ModalityBehavior, Payload: BehaviorPayload{Session: BehaviorSession{SessionID: "s-1"}}},
		{CustomerID: "c-1", Modality: ModalityVoice, Payload: VoicePayload{Insight: VoiceInsight{Transcript: "hi", Intent: "demo_request"}}},
		{CustomerID: "c-1", Modality: ModalityText, Payload: TextPayload{Record: TextRecord{Content: "hello"}}},
		{CustomerID: "c-1", Modality: ModalityInteraction, Payload: InteractionPayload{Record: InteractionRecord{Type: "email"}}},
	}

	sessions := BehaviorSessions(points)
	require.Len(t, sessions, 1)
	assert.Equal(t, "c-1", sessions[0].CustomerID)
	assert.Equal(t, "s-1", sessions[0].SessionID)

	voice := VoiceInsights(points)
	require.Len(t, voice, 1)
	assert.Equal(t, "c-1", voice[0].CustomerID)
	assert.True(t, voice[0].HasIntent())

	for _, p := range points {
		assert.Equal(t, p.Modality, p.Payload.Modality())
	}
}

func TestDefaultCustomer(t *testing.T) {
	c := DefaultCustomer("c-7")
	assert.Equal(t, Customer{ID: "c-7", Size: "medium", Industry: "technology", Status: "qualified"}, c)
}
