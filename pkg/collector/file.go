package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"crm-value-server/pkg/errors"
	"crm-value-server/pkg/multimodal"
)

// Fixture is the JSON layout of a record file: customer master data plus
// raw records keyed by customer ID.
type Fixture struct {
	Customers []multimodal.Customer            `json:"customers"`
	Records   map[string]multimodal.RawRecords `json:"records"`
}

// LoadFile reads a JSON fixture into a new MemorySource. Customers that only
// appear under records get default master data.
func LoadFile(path string) (*MemorySource, error) {
	fx, err := ReadFixture(path)
	if err != nil {
		return nil, err
	}
	return fx.Source(), nil
}

// ReadFixture parses a JSON fixture file.
func ReadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, errors.Wrap(err, "failed to read fixture file", map[string]interface{}{
			"path": path,
		})
	}

	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return Fixture{}, errors.NewInvalidInput(fmt.Sprintf("invalid fixture file %s: %v", path, err))
	}
	return fx, nil
}

// Source builds a MemorySource from the fixture.
func (fx Fixture) Source() *MemorySource {
	src := NewMemorySource()
	for _, c := range fx.Customers {
		if c.ID == "" {
			continue
		}
		src.PutCustomer(c)
	}

	for _, id := range fx.customerIDs() {
		if _, err := src.LookupCustomer(context.Background(), id); err != nil {
			src.PutCustomer(multimodal.DefaultCustomer(id))
		}
		src.Add(id, fx.Records[id])
	}
	return src
}

// customerIDs returns the non-empty record keys in order.
func (fx Fixture) customerIDs() []string {
	ids := make([]string, 0, len(fx.Records))
	for id := range fx.Records {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
