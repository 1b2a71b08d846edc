package collector

import (
	"context"
	"sync"
	"time"

	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"
)

// MemorySource keeps customers and their raw records in memory. It backs
// tests, JSON fixture files and the demo data set.
type MemorySource struct {
	mu        sync.RWMutex
	customers map[string]multimodal.Customer
	order     []string
	records   map[string]*multimodal.RawRecords
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		customers: make(map[string]multimodal.Customer),
		records:   make(map[string]*multimodal.RawRecords),
	}
}

// PutCustomer stores or replaces customer master data.
func (s *MemorySource) PutCustomer(c multimodal.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.customers[c.ID] = c
}

// Add appends raw records for customerID. Records without a customer ID are
// attributed to customerID.
func (s *MemorySource) Add(customerID string, raw multimodal.RawRecords) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[customerID]
	if !ok {
		r = &multimodal.RawRecords{}
		s.records[customerID] = r
	}

	for _, t := range raw.Text {
		if t.CustomerID == "" {
			t.CustomerID = customerID
		}
		r.Text = append(r.Text, t)
	}
	for _, v := range raw.Voice {
		if v.CustomerID == "" {
			v.CustomerID = customerID
		}
		r.Voice = append(r.Voice, v)
	}
	for _, b := range raw.Behavior {
		if b.CustomerID == "" {
			b.CustomerID = customerID
		}
		r.Behavior = append(r.Behavior, b)
	}
	for _, i := range raw.Interaction {
		if i.CustomerID == "" {
			i.CustomerID = customerID
		}
		r.Interaction = append(r.Interaction, i)
	}
}

func (s *MemorySource) raw(customerID string) multimodal.RawRecords {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[customerID]; ok {
		return *r
	}
	return multimodal.RawRecords{}
}

// CollectText implements TextCollector.
func (s *MemorySource) CollectText(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.TextRecord, error) {
	return inRange(s.raw(customerID).Text, tr, func(r multimodal.TextRecord) time.Time { return r.Timestamp }), nil
}

// CollectVoice implements VoiceCollector.
func (s *MemorySource) CollectVoice(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.VoiceInsight, error) {
	return inRange(s.raw(customerID).Voice, tr, func(v multimodal.VoiceInsight) time.Time { return v.Timestamp }), nil
}

// CollectBehavior implements BehaviorCollector.
func (s *MemorySource) CollectBehavior(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.BehaviorSession, error) {
	return inRange(s.raw(customerID).Behavior, tr, func(b multimodal.BehaviorSession) time.Time { return b.Timestamp }), nil
}

// CollectInteraction implements InteractionCollector.
func (s *MemorySource) CollectInteraction(_ context.Context, customerID string, tr multimodal.TimeRange) ([]multimodal.InteractionRecord, error) {
	return inRange(s.raw(customerID).Interaction, tr, func(i multimodal.InteractionRecord) time.Time { return i.Timestamp }), nil
}

// LookupCustomer implements CustomerDirectory.
func (s *MemorySource) LookupCustomer(_ context.Context, customerID string) (multimodal.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return multimodal.Customer{}, errors.NewNotFound("customer not found", map[string]interface{}{
			"customer_id": customerID,
		})
	}
	return c, nil
}

// ListCustomers implements CustomerLister, in insertion order.
func (s *MemorySource) ListCustomers(_ context.Context) ([]multimodal.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]multimodal.Customer, len(s.order))
	for i, id := range s.order {
		out[i] = s.customers[id]
	}
	return out, nil
}

// All returns every stored session and voice insight, for bulk scoring.
func (s *MemorySource) All() ([]multimodal.BehaviorSession, []multimodal.VoiceInsight) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []multimodal.BehaviorSession
	var voice []multimodal.VoiceInsight
	for _, id := range s.order {
		if r, ok := s.records[id]; ok {
			sessions = append(sessions, r.Behavior...)
			voice = append(voice, r.Voice...)
		}
	}
	return sessions, voice
}
