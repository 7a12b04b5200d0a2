// Package events defines the payloads exchanged with the chat platform: the
// message lifecycle feed we consume and the outgoing send requests we
// produce, plus the updates pushed to websocket subscribers.
package events

import "github.com/sim31/fractalgram/internal/models"

const (
	TypeMessageCreated = "message.created"
	TypeMessageUpdated = "message.updated"
	TypeMessageDeleted = "message.deleted"
)

// MessageEvent is one message lifecycle event, scoped to a chat. Updated
// events carry the prior message fields next to the new ones; deleted events
// carry only ids. Events for the same chat must be applied in the order they
// were produced.
type MessageEvent struct {
	Type       string             `json:"type"`
	ChatID     string             `json:"chat_id"`
	Message    *models.Message    `json:"message,omitempty"`
	Prior      *models.Message    `json:"prior,omitempty"`
	MessageIDs []models.MessageID `json:"message_ids,omitempty"`
}

// SendRequest asks the chat platform to send a message to a chat. Text may
// contain markdown formatting; the send path resolves it into entities. When
// Poll is set the platform sends a poll instead of a text message.
type SendRequest struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text,omitempty"`
	Poll      *PollSpec `json:"poll,omitempty"`
	ParseMode string    `json:"parse_mode,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
}

// PollSpec describes a poll to create: a question and its answer options.
type PollSpec struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Update kinds pushed to subscribers.
const (
	UpdateIndex  = "consensus.index"
	UpdateReport = "consensus.report"
)

// Update notifies subscribers that a chat's consensus state changed.
type Update struct {
	Kind     string `json:"kind"`
	ChatID   string `json:"chat_id"`
	ReportID string `json:"report_id,omitempty"`
	Status   string `json:"status,omitempty"`
}
