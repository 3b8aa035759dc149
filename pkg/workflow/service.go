package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Vihanga22365/governance-analysis/pkg/clarification"
	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/snapshot"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

// Sections used when broadcasting after a mutation. "commitee_approval" is the
// spelling subscribers already match on.
const (
	SectionCommitteeApproval  = "commitee_approval"
	SectionCostDetails        = "cost_details"
	SectionEnvironmentDetails = "environment_details"
	SectionChatHistory        = "chat_history"
)

// Backend performs the governance writes.
type Backend interface {
	UpdateCommitteeClarifications(ctx context.Context, governanceID string, committee domain.Committee, items []domain.ClarificationItem) (json.RawMessage, error)
	UpdateCommitteeStatus(ctx context.Context, governanceID string, statuses map[domain.Committee]domain.CommitteeStatus) (json.RawMessage, error)
	UpdateCostClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (json.RawMessage, error)
	UpdateEnvironmentClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (json.RawMessage, error)
}

// Assembler builds snapshots.
type Assembler interface {
	Assemble(ctx context.Context, governanceID, section, subSection string) (*domain.Snapshot, error)
}

// Broadcaster hands messages to the publisher loop.
type Broadcaster interface {
	ScheduleBroadcast(snap domain.CleanSnapshot) error
	ScheduleChatHistory(governanceID string, data json.RawMessage) error
}

// ChatSource fetches the chat history of a governance case.
type ChatSource interface {
	Fetch(ctx context.Context, governanceID string) (json.RawMessage, *domain.SourceError)
}

// Approver vets committee status changes before they are written.
type Approver interface {
	Check(ctx context.Context, governanceID string, items []domain.CommitteeStatusItem) error
}

// Notification reports one attempted broadcast.
type Notification struct {
	Section    string `json:"section"`
	SubSection string `json:"sub_section"`
	Scheduled  bool   `json:"scheduled"`
	Error      string `json:"error,omitempty"`
}

// Result is returned by every successful mutation.
type Result struct {
	Response      json.RawMessage `json:"response"`
	Notifications []Notification  `json:"notifications"`
}

// Service runs the governance workflows.
type Service struct {
	backend     Backend
	assembler   Assembler
	broadcaster Broadcaster
	chat        ChatSource
	approver    Approver
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithApprover installs an approval check for committee status updates.
func WithApprover(a Approver) Option {
	return func(s *Service) { s.approver = a }
}

// WithChatSource enables PublishChatHistory.
func WithChatSource(c ChatSource) Option {
	return func(s *Service) { s.chat = c }
}

// NewService wires a Service.
func NewService(backend Backend, assembler Assembler, broadcaster Broadcaster, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		backend:     backend,
		assembler:   assembler,
		broadcaster: broadcaster,
		tracer:      telemetry.Tracer(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateCommitteeClarifications validates items against committee, writes them and
// broadcasts the committee approval view.
func (s *Service) UpdateCommitteeClarifications(ctx context.Context, governanceID string, committee domain.Committee, items []domain.ClarificationItem) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.update_committee_clarifications", trace.WithAttributes(
		attribute.String("governance.id", governanceID),
		attribute.String("governance.committee", string(committee)),
	))
	defer span.End()

	if err := requireGovernanceID(governanceID); err != nil {
		return nil, err
	}
	accepted, err := clarification.ValidateBatch(committee, items)
	if err != nil {
		return nil, err
	}

	resp, err := s.backend.UpdateCommitteeClarifications(ctx, governanceID, committee, accepted)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update %s clarifications: %w", committee, err)
	}
	s.logger.Info("committee clarifications updated",
		"governance_id", governanceID,
		"committee", committee,
		"items", len(accepted),
	)

	return &Result{
		Response:      resp,
		Notifications: []Notification{s.notify(ctx, governanceID, SectionCommitteeApproval, string(committee))},
	}, nil
}

// UpdateCommitteeStatus validates and writes committee approval statuses. Repeated
// committees resolve to their last status. One broadcast is made per distinct committee.
func (s *Service) UpdateCommitteeStatus(ctx context.Context, governanceID string, items []domain.CommitteeStatusItem) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.update_committee_status", trace.WithAttributes(
		attribute.String("governance.id", governanceID),
		attribute.Int("governance.status_items", len(items)),
	))
	defer span.End()

	if err := requireGovernanceID(governanceID); err != nil {
		return nil, err
	}
	accepted, err := clarification.ValidateCommitteeStatus(items)
	if err != nil {
		return nil, err
	}
	if s.approver != nil {
		if err := s.approver.Check(ctx, governanceID, accepted); err != nil {
			return nil, err
		}
	}

	resp, err := s.backend.UpdateCommitteeStatus(ctx, governanceID, clarification.Reduce(accepted))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update committee status: %w", err)
	}
	s.logger.Info("committee statuses updated", "governance_id", governanceID, "items", len(accepted))

	committees := distinctCommittees(accepted)
	result := &Result{Response: resp, Notifications: make([]Notification, 0, len(committees))}
	for _, committee := range committees {
		result.Notifications = append(result.Notifications,
			s.notify(ctx, governanceID, SectionCommitteeApproval, string(committee)))
	}
	return result, nil
}

// UpdateCostClarifications validates and writes cost clarifications.
func (s *Service) UpdateCostClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (*Result, error) {
	return s.updateSectionClarifications(ctx, governanceID, items,
		clarification.ValidateCostBatch, s.backend.UpdateCostClarifications, SectionCostDetails)
}

// UpdateEnvironmentClarifications validates and writes environment clarifications.
func (s *Service) UpdateEnvironmentClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (*Result, error) {
	return s.updateSectionClarifications(ctx, governanceID, items,
		clarification.ValidateEnvironmentBatch, s.backend.UpdateEnvironmentClarifications, SectionEnvironmentDetails)
}

type batchValidator func([]domain.ClarificationItem) ([]domain.ClarificationItem, error)

type batchWriter func(context.Context, string, []domain.ClarificationItem) (json.RawMessage, error)

func (s *Service) updateSectionClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem, validate batchValidator, write batchWriter, section string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.update_"+section+"_clarifications", trace.WithAttributes(
		attribute.String("governance.id", governanceID),
	))
	defer span.End()

	if err := requireGovernanceID(governanceID); err != nil {
		return nil, err
	}
	accepted, err := validate(items)
	if err != nil {
		return nil, err
	}

	resp, err := write(ctx, governanceID, accepted)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update %s clarifications: %w", section, err)
	}
	s.logger.Info("clarifications updated", "governance_id", governanceID, "section", section, "items", len(accepted))

	return &Result{
		Response:      resp,
		Notifications: []Notification{s.notify(ctx, governanceID, section, domain.DefaultSection)},
	}, nil
}

// Snapshot assembles and projects the current state without broadcasting.
func (s *Service) Snapshot(ctx context.Context, governanceID, section, subSection string) (domain.CleanSnapshot, error) {
	if err := requireGovernanceID(governanceID); err != nil {
		return domain.CleanSnapshot{}, err
	}
	snap, err := s.assembler.Assemble(ctx, governanceID, section, subSection)
	if err != nil {
		return domain.CleanSnapshot{}, err
	}
	return snapshot.Project(snap), nil
}

// Refresh broadcasts the current state without mutating anything.
func (s *Service) Refresh(ctx context.Context, governanceID, section, subSection string) (Notification, error) {
	if err := requireGovernanceID(governanceID); err != nil {
		return Notification{}, err
	}
	return s.notify(ctx, governanceID, section, subSection), nil
}

// PublishChatHistory fetches the chat history and broadcasts it as chat_history_update.
func (s *Service) PublishChatHistory(ctx context.Context, governanceID string) (Notification, error) {
	if err := requireGovernanceID(governanceID); err != nil {
		return Notification{}, err
	}
	if s.chat == nil {
		return Notification{}, fmt.Errorf("publish chat history: no chat source configured")
	}

	n := Notification{Section: SectionChatHistory, SubSection: domain.DefaultSection}
	payload, srcErr := s.chat.Fetch(ctx, governanceID)
	if srcErr != nil {
		return n, srcErr
	}

	clean := snapshot.Project(&domain.Snapshot{Slots: map[domain.SourceName]domain.Slot{
		domain.SourceChatHistory: {Payload: payload},
	}})
	data, err := json.Marshal(clean.Slots[domain.SourceChatHistory])
	if err != nil {
		return n, fmt.Errorf("publish chat history: %w", err)
	}

	if err := s.broadcaster.ScheduleChatHistory(governanceID, data); err != nil {
		n.Error = err.Error()
		return n, nil
	}
	n.Scheduled = true
	return n, nil
}

// notify assembles, projects and schedules one broadcast. Failures are logged and
// reported in the Notification, never returned. The broadcast outlives the caller:
// each source call is still bounded by its own timeout.
func (s *Service) notify(ctx context.Context, governanceID, section, subSection string) Notification {
	ctx = context.WithoutCancel(ctx)
	n := Notification{Section: orDefault(section), SubSection: orDefault(subSection)}

	snap, err := s.assembler.Assemble(ctx, governanceID, n.Section, n.SubSection)
	if err != nil {
		s.logger.Error("broadcast assembly failed", "governance_id", governanceID, "section", n.Section, "error", err)
		n.Error = err.Error()
		return n
	}

	if err := s.broadcaster.ScheduleBroadcast(snapshot.Project(snap)); err != nil {
		n.Error = err.Error()
		return n
	}
	n.Scheduled = true
	return n
}

func requireGovernanceID(governanceID string) error {
	if strings.TrimSpace(governanceID) == "" {
		return domain.NewValidationError(domain.CodeEmptyGovernanceID, "governance_id", "governance id is required")
	}
	return nil
}

func distinctCommittees(items []domain.CommitteeStatusItem) []domain.Committee {
	seen := make(map[domain.Committee]bool, len(items))
	var out []domain.Committee
	for _, item := range items {
		if !seen[item.Committee] {
			seen[item.Committee] = true
			out = append(out, item.Committee)
		}
	}
	return out
}

func orDefault(v string) string {
	if v == "" {
		return domain.DefaultSection
	}
	return v
}
