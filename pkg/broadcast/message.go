package broadcast

import (
	"encoding/json"
	"fmt"
)

// MessageType names a family of pushed messages.
type MessageType string

const (
	// TypeGovernanceDetails carries a projected governance snapshot.
	TypeGovernanceDetails MessageType = "governance_details_update"
	// TypeChatHistory carries the chat history of a governance case.
	TypeChatHistory MessageType = "chat_history_update"
)

// Message is the wire envelope of every text frame sent to subscribers.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// Encode serializes msg into a frame.
func (m Message) Encode() ([]byte, error) {
	frame, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return frame, nil
}
