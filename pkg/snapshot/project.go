package snapshot

import (
	"encoding/json"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
)

// fieldMap renames payload fields to their projected names.
type fieldMap []struct{ from, to string }

var projections = map[domain.SourceName]fieldMap{
	domain.SourceGovernanceReport: {
		{"report_content", "content"},
		{"documents", "documents"},
	},
	domain.SourceRiskDetails: {
		{"risk_level", "level"},
		{"reason", "reason"},
		{"committee_1", "committee_1"},
		{"committee_2", "committee_2"},
		{"committee_3", "committee_3"},
	},
	domain.SourceCostDetails: {
		{"total_estimated_cost", "total"},
		{"cost_breakdown", "breakdown"},
	},
	domain.SourceEnvironmentDetails: {
		{"environment", "provider"},
		{"region", "region"},
		{"environment_breakdown", "breakdown"},
	},
	domain.SourceCostClarifications:        {{"clarifications", "clarifications"}},
	domain.SourceEnvironmentClarifications: {{"clarifications", "clarifications"}},
	domain.SourceCommitteeClarifications:   {{"clarifications", "clarifications"}},
}

// Project reduces every successful slot of snap to its essential fields. Errored
// slots are carried over as their SourceError. Project performs no I/O.
func Project(snap *domain.Snapshot) domain.CleanSnapshot {
	clean := domain.CleanSnapshot{
		GovernanceID: snap.GovernanceID,
		Section:      snap.Section,
		SubSection:   snap.SubSection,
		Slots:        make(map[domain.SourceName]any, len(snap.Slots)),
	}
	for name, slot := range snap.Slots {
		if !slot.OK() {
			clean.Slots[name] = slot.Err
			continue
		}
		clean.Slots[name] = projectSlot(name, slot.Payload)
	}
	return clean
}

func projectSlot(name domain.SourceName, payload json.RawMessage) any {
	var decoded any
	if len(payload) == 0 || json.Unmarshal(payload, &decoded) != nil {
		return payload
	}

	fields, ok := projections[name]
	if !ok {
		// chat history keeps its unwrapped data as is
		return unwrap(decoded, false)
	}
	record := unwrap(decoded, true)
	if record == nil {
		return nil
	}
	obj, isObject := record.(map[string]any)
	if !isObject {
		return record
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.to] = obj[f.from]
	}
	return out
}

// unwrap strips the backend's {"message", "data"} envelope. With firstRecord set
// and data holding a list of records, the first record is used.
func unwrap(v any, firstRecord bool) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	data, ok := obj["data"]
	if !ok {
		return v
	}
	if list, isList := data.([]any); isList && firstRecord {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return data
}
