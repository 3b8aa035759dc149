package backend

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
)

// Source fetches one governance sub-resource.
type Source interface {
	Name() domain.SourceName
	Fetch(ctx context.Context, governanceID string) (json.RawMessage, *domain.SourceError)
}

// endpointSource is a Source backed by a fixed GET endpoint.
type endpointSource struct {
	name   domain.SourceName
	client *Client
	path   func(governanceID string) *url.URL
}

func (s *endpointSource) Name() domain.SourceName { return s.name }

func (s *endpointSource) Fetch(ctx context.Context, governanceID string) (json.RawMessage, *domain.SourceError) {
	return s.client.get(ctx, s.name, s.path(governanceID))
}

func underGovernance(collection string) func(string) *url.URL {
	return func(governanceID string) *url.URL {
		return resourcePath(collection, "governance", governanceID)
	}
}

// Sources returns the adapters for every governance sub-resource, in snapshot order.
func (c *Client) Sources() []Source {
	return []Source{
		&endpointSource{name: domain.SourceChatHistory, client: c, path: func(id string) *url.URL {
			return resourcePath("chat-history", id)
		}},
		&endpointSource{name: domain.SourceGovernanceReport, client: c, path: underGovernance("generate-report")},
		&endpointSource{name: domain.SourceRiskDetails, client: c, path: underGovernance("risk-analyse")},
		&endpointSource{name: domain.SourceCostDetails, client: c, path: underGovernance("cost-details")},
		&endpointSource{name: domain.SourceEnvironmentDetails, client: c, path: underGovernance("environment-details")},
		&endpointSource{name: domain.SourceCostClarifications, client: c, path: underGovernance("cost-clarifications")},
		&endpointSource{name: domain.SourceEnvironmentClarifications, client: c, path: underGovernance("environment-clarifications")},
		&endpointSource{name: domain.SourceCommitteeClarifications, client: c, path: underGovernance("committee-clarifications")},
	}
}

// Source returns the adapter for name, or nil when name is unknown.
func (c *Client) Source(name domain.SourceName) Source {
	for _, src := range c.Sources() {
		if src.Name() == name {
			return src
		}
	}
	return nil
}
