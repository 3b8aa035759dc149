package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
)

// DecisionQuery is the Rego reference evaluated for every status change.
const DecisionQuery = "data.governance.approval"

// Input is the document a policy sees as input.
type Input struct {
	GovernanceID string                 `json:"governance_id"`
	Committee    domain.Committee       `json:"committee"`
	Status       domain.CommitteeStatus `json:"status"`
}

// Decision is the evaluated outcome for one Input.
type Decision struct {
	Allow  bool
	Reason string
}

// Gate holds the current approval policy. It is safe for concurrent use and
// can be swapped at runtime.
type Gate struct {
	query  atomic.Pointer[rego.PreparedEvalQuery]
	source atomic.Pointer[string]
	logger *slog.Logger
}

// NewGate creates a Gate with no policy loaded.
func NewGate(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{logger: logger}
}

// Load compiles module and makes it the active policy.
func (g *Gate) Load(ctx context.Context, name, module string) error {
	prepared, err := rego.New(
		rego.Query(DecisionQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compile approval policy %s: %w", name, err)
	}
	g.query.Store(&prepared)
	g.source.Store(&name)
	g.logger.Info("approval policy loaded", "policy", name)
	return nil
}

// LoadFile reads and loads the Rego module at path. An empty path clears the policy.
func (g *Gate) LoadFile(ctx context.Context, path string) error {
	if path == "" {
		g.Clear()
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read approval policy: %w", err)
	}
	return g.Load(ctx, path, string(data))
}

// Clear removes the active policy.
func (g *Gate) Clear() {
	if g.query.Swap(nil) != nil {
		g.logger.Info("approval policy cleared")
	}
	g.source.Store(nil)
}

// Active returns the name of the loaded policy, or "".
func (g *Gate) Active() string {
	if name := g.source.Load(); name != nil {
		return *name
	}
	return ""
}

// Evaluate returns the decision for in. An undefined decision denies.
func (g *Gate) Evaluate(ctx context.Context, in Input) (Decision, error) {
	prepared := g.query.Load()
	if prepared == nil {
		return Decision{Allow: true}, nil
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate approval policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "approval policy produced no decision"}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("evaluate approval policy: unexpected result type %T", results[0].Expressions[0].Value)
	}
	allow, _ := doc["allow"].(bool)
	reason, _ := doc["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

// ErrPolicyUnavailable wraps evaluation failures so callers can tell them from denials.
var ErrPolicyUnavailable = errors.New("approval policy unavailable")

// Check evaluates every item and returns a POLICY_DENIED validation error for the
// first denied one.
func (g *Gate) Check(ctx context.Context, governanceID string, items []domain.CommitteeStatusItem) error {
	for i, item := range items {
		decision, err := g.Evaluate(ctx, Input{GovernanceID: governanceID, Committee: item.Committee, Status: item.Status})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
		}
		if decision.Allow {
			continue
		}
		reason := decision.Reason
		if reason == "" {
			reason = "denied by approval policy"
		}
		return domain.NewValidationError(domain.CodePolicyDenied, fmt.Sprintf("statuses[%d]", i),
			"%s cannot be set to %s: %s", item.Committee, item.Status, reason)
	}
	return nil
}
