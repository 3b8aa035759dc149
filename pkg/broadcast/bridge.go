package broadcast

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

// Bridge moves messages from any goroutine onto the publisher loop. It never
// blocks beyond an in-memory enqueue.
type Bridge struct {
	hub     *Hub
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewBridge creates a Bridge feeding hub. metrics may be nil.
func NewBridge(hub *Hub, logger *slog.Logger, metrics *telemetry.Metrics) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{hub: hub, logger: logger, metrics: metrics}
}

// ScheduleBroadcast queues a governance_details_update for snap. ErrLoopNotReady
// and ErrQueueFull are logged and returned; the broadcast is skipped.
func (b *Bridge) ScheduleBroadcast(snap domain.CleanSnapshot) error {
	err := b.schedule(Message{Type: TypeGovernanceDetails, Data: snap})
	if err != nil {
		b.logger.Warn("governance details broadcast skipped",
			"governance_id", snap.GovernanceID,
			"section", snap.Section,
			"error", err,
		)
	}
	return err
}

// ScheduleChatHistory queues a chat_history_update carrying data.
func (b *Bridge) ScheduleChatHistory(governanceID string, data json.RawMessage) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	err := b.schedule(Message{Type: TypeChatHistory, Data: data})
	if err != nil {
		b.logger.Warn("chat history broadcast skipped", "governance_id", governanceID, "error", err)
	}
	return err
}

func (b *Bridge) schedule(msg Message) error {
	err := b.hub.enqueue(msg)
	if err != nil && b.metrics != nil {
		reason := "not_ready"
		if errors.Is(err, ErrQueueFull) {
			reason = "queue_full"
		}
		b.metrics.RecordScheduleFailure(reason)
	}
	return err
}
