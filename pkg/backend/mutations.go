package backend

import (
	"context"
	"encoding/json"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
)

type clarificationsBody struct {
	Clarifications []domain.ClarificationItem `json:"clarifications"`
}

// UpdateCommitteeClarifications replaces the answers of one committee's clarifications.
func (c *Client) UpdateCommitteeClarifications(ctx context.Context, governanceID string, committee domain.Committee, items []domain.ClarificationItem) (json.RawMessage, error) {
	return c.put(ctx, "committee_clarifications",
		resourcePath("committee-clarifications", governanceID, string(committee)),
		clarificationsBody{Clarifications: items})
}

// UpdateCommitteeStatus sets the approval status of the committees present in statuses.
func (c *Client) UpdateCommitteeStatus(ctx context.Context, governanceID string, statuses map[domain.Committee]domain.CommitteeStatus) (json.RawMessage, error) {
	body := make(map[string]string, len(statuses)+1)
	body["governance_id"] = governanceID
	for committee, status := range statuses {
		body[string(committee)] = string(status)
	}
	return c.put(ctx, "committee_status", resourcePath("risk-analyse", "update-committee"), body)
}

// UpdateCostClarifications replaces the answers of the cost clarifications.
func (c *Client) UpdateCostClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (json.RawMessage, error) {
	return c.put(ctx, "cost_clarifications",
		resourcePath("cost-clarifications", governanceID),
		clarificationsBody{Clarifications: items})
}

// UpdateEnvironmentClarifications replaces the answers of the environment clarifications.
func (c *Client) UpdateEnvironmentClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (json.RawMessage, error) {
	return c.put(ctx, "environment_clarifications",
		resourcePath("environment-clarifications", governanceID),
		clarificationsBody{Clarifications: items})
}
