package models

import (
	"bytes"
	"strconv"
)

// MessageID is a per-chat monotonic message identifier. It is float64-backed
// because locally-synthesized messages (e.g. service notifications injected by
// a client) carry fractional ids between two real ids.
type MessageID float64

// MarshalText lets MessageID serve as a JSON map key; encoding/json accepts
// only string, integer or TextMarshaler keys.
func (id MessageID) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(id), 'f', -1, 64)), nil
}

func (id *MessageID) UnmarshalText(text []byte) error {
	f, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return err
	}
	*id = MessageID(f)
	return nil
}

// MarshalJSON keeps ids numeric when used as values; without it the
// TextMarshaler above would turn them into strings.
func (id MessageID) MarshalJSON() ([]byte, error) {
	return id.MarshalText()
}

// UnmarshalJSON accepts both numeric and quoted ids.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	return id.UnmarshalText(bytes.Trim(data, `"`))
}

// Message is the slice of a chat message this service cares about. Messages
// are owned by the chat platform; we only mirror and classify them.
type Message struct {
	ID        MessageID `bson:"_id" json:"id"`
	ChatID    string    `bson:"chat_id" json:"chat_id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Date      int64     `bson:"date" json:"date"`
	Text      string    `bson:"text,omitempty" json:"text,omitempty"`
	Poll      *Poll     `bson:"poll,omitempty" json:"poll,omitempty"`
	ReplyToID MessageID `bson:"reply_to_id,omitempty" json:"reply_to_id,omitempty"`
}

// Poll is a poll attached to a message: a question, its answer options and
// the live per-option tallies.
type Poll struct {
	Question string        `bson:"question" json:"question"`
	Answers  []PollAnswer  `bson:"answers" json:"answers"`
	Results  []OptionVotes `bson:"results,omitempty" json:"results,omitempty"`
}

// PollAnswer is one selectable option. Option is an opaque identifier chosen
// by the platform; Text is what voters see.
type PollAnswer struct {
	Option string `bson:"option" json:"option"`
	Text   string `bson:"text" json:"text"`
}

// OptionVotes is the live voter count for one option.
type OptionVotes struct {
	Option     string `bson:"option" json:"option"`
	VoterCount int    `bson:"voter_count" json:"voter_count"`
}

// Answer returns the answer with the given option id, or nil.
func (p *Poll) Answer(option string) *PollAnswer {
	for i := range p.Answers {
		if p.Answers[i].Option == option {
			return &p.Answers[i]
		}
	}
	return nil
}

// PollQuestion returns the poll question of m, or "" if m carries no poll.
func (m *Message) PollQuestion() string {
	if m.Poll == nil {
		return ""
	}
	return m.Poll.Question
}
