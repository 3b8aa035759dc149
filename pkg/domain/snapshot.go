package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourceName names one governance sub-resource fetched by a source adapter.
// The names double as the snapshot keys and the endpoint identifiers in SourceError.
type SourceName string

const (
	SourceChatHistory               SourceName = "chat_history"
	SourceGovernanceReport          SourceName = "governance_report"
	SourceRiskDetails               SourceName = "risk_details"
	SourceCostDetails               SourceName = "cost_details"
	SourceEnvironmentDetails        SourceName = "environment_details"
	SourceCostClarifications        SourceName = "cost_clarifications"
	SourceEnvironmentClarifications SourceName = "environment_clarifications"
	SourceCommitteeClarifications   SourceName = "committee_clarifications"
)

// SourceNames lists every source in snapshot order.
var SourceNames = []SourceName{
	SourceChatHistory,
	SourceGovernanceReport,
	SourceRiskDetails,
	SourceCostDetails,
	SourceEnvironmentDetails,
	SourceCostClarifications,
	SourceEnvironmentClarifications,
	SourceCommitteeClarifications,
}

// DefaultSection is used when a snapshot is requested without a focus.
const DefaultSection = "none"

// SourceError describes a failed fetch of a single source. It is carried as data
// inside a snapshot slot and never aborts an aggregation.
type SourceError struct {
	Message    string     `json:"error"`
	StatusCode int        `json:"status_code,omitempty"`
	Endpoint   SourceName `json:"endpoint"`
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Endpoint)
}

// Slot holds either the payload of a source or the error that replaced it.
type Slot struct {
	Payload json.RawMessage
	Err     *SourceError
}

// OK reports whether the slot carries a payload.
func (s Slot) OK() bool {
	return s.Err == nil
}

// Snapshot is a point-in-time aggregation of a governance case. Slots are
// independently stale: each was fetched by a separate call.
type Snapshot struct {
	GovernanceID string
	Section      string
	SubSection   string
	Slots        map[SourceName]Slot
}

// Failed returns the names of the slots that hold an error, in snapshot order.
func (s *Snapshot) Failed() []SourceName {
	var failed []SourceName
	for _, name := range SourceNames {
		if slot, ok := s.Slots[name]; ok && !slot.OK() {
			failed = append(failed, name)
		}
	}
	return failed
}

// MarshalJSON flattens the snapshot into a single object keyed by source name.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	values := make(map[SourceName]any, len(s.Slots))
	for name, slot := range s.Slots {
		if slot.OK() {
			values[name] = slot.Payload
		} else {
			values[name] = slot.Err
		}
	}
	return marshalFlat(s.GovernanceID, s.Section, s.SubSection, values)
}

// CleanSnapshot is the consumer-facing projection of a Snapshot. Each slot is
// either the essential fields of the payload or the SourceError unchanged.
type CleanSnapshot struct {
	GovernanceID string
	Section      string
	SubSection   string
	Slots        map[SourceName]any
}

// MarshalJSON flattens the projection the same way Snapshot does.
func (c CleanSnapshot) MarshalJSON() ([]byte, error) {
	return marshalFlat(c.GovernanceID, c.Section, c.SubSection, c.Slots)
}

func marshalFlat(governanceID, section, subSection string, slots map[SourceName]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(key string, value any) error {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(encoded)
		return nil
	}

	if err := writeField("governance_id", governanceID); err != nil {
		return nil, err
	}
	if err := writeField("section", section); err != nil {
		return nil, err
	}
	if err := writeField("sub_section", subSection); err != nil {
		return nil, err
	}
	for _, name := range SourceNames {
		value, ok := slots[name]
		if !ok {
			continue
		}
		if err := writeField(string(name), value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
