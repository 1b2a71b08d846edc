package multimodal

// Payload is the typed raw record a DataPoint was built from. Exactly one of
// TextPayload, VoicePayload, BehaviorPayload or InteractionPayload.
type Payload interface {
	Modality() Modality
	payload()
}

// TextPayload carries a TextRecord.
type TextPayload struct{ Record TextRecord }

// VoicePayload carries a VoiceInsight.
type VoicePayload struct{ Insight VoiceInsight }

// BehaviorPayload carries a BehaviorSession.
type BehaviorPayload struct{ Session BehaviorSession }

// InteractionPayload carries an InteractionRecord.
type InteractionPayload struct{ Record InteractionRecord }

func (TextPayload) Modality() Modality        { return ModalityText }
func (VoicePayload) Modality() Modality       { return ModalityVoice }
func (BehaviorPayload) Modality() Modality    { return ModalityBehavior }
func (InteractionPayload) Modality() Modality { return ModalityInteraction }

func (TextPayload) payload()        {}
func (VoicePayload) payload()       {}
func (BehaviorPayload) payload()    {}
func (InteractionPayload) payload() {}

// BehaviorSessions rebuilds the sessions carried by behavior points. The
// customer id of each session is taken from the point when the record lacks one.
func BehaviorSessions(points []DataPoint) []BehaviorSession {
	var out []BehaviorSession
	for _, p := range points {
		bp, ok := p.Payload.(BehaviorPayload)
		if !ok {
			continue
		}
		s := bp.Session
		if s.CustomerID == "" {
			s.CustomerID = p.CustomerID
		}
		out = append(out, s)
	}
	return out
}

// VoiceInsights rebuilds the voice insights carried by voice points.
func VoiceInsights(points []DataPoint) []VoiceInsight {
	var out []VoiceInsight
	for _, p := range points {
		vp, ok := p.Payload.(VoicePayload)
		if !ok {
			continue
		}
		v := vp.Insight
		if v.CustomerID == "" {
			v.CustomerID = p.CustomerID
		}
		out = append(out, v)
	}
	return out
}
