package consensus

import (
	"github.com/sim31/fractalgram/internal/models"
)

const testChatID = "chat-1"

func textMsg(id models.MessageID, date int64, sender, text string) *models.Message {
	return &models.Message{
		ID:       id,
		ChatID:   testChatID,
		SenderID: sender,
		Date:     date,
		Text:     text,
	}
}

func replyMsg(id models.MessageID, date int64, sender, text string, replyTo models.MessageID) *models.Message {
	m := textMsg(id, date, sender, text)
	m.ReplyToID = replyTo
	return m
}

// pollMsg builds a poll message; votes are per option text, in order.
func pollMsg(id models.MessageID, date int64, question string, options []string, votes []int) *models.Message {
	poll := &models.Poll{Question: question}
	for i, text := range options {
		opt := string(rune('0' + i))
		poll.Answers = append(poll.Answers, models.PollAnswer{Option: opt, Text: text})
		if i < len(votes) {
			poll.Results = append(poll.Results, models.OptionVotes{Option: opt, VoterCount: votes[i]})
		}
	}
	return &models.Message{
		ID:     id,
		ChatID: testChatID,
		Date:   date,
		Poll:   poll,
	}
}

func byIDOf(msgs ...*models.Message) map[models.MessageID]*models.Message {
	out := make(map[models.MessageID]*models.Message, len(msgs))
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out
}

// testRoster returns three members: Alice, Bob and Carol, with acme accounts.
func testRoster() models.AccountMap {
	return models.AccountMap{
		"u1": {ID: "u1", FirstName: "Alice", ExtAccounts: map[string]string{"acme": "alice1"}},
		"u2": {ID: "u2", FirstName: "Bob", ExtAccounts: map[string]string{"acme": "bob1"}},
		"u3": {ID: "u3", FirstName: "Carol", ExtAccounts: map[string]string{"acme": "carol1"}},
	}
}

// bucketsHolding counts how many index buckets contain id.
func bucketsHolding(ix Index, id models.MessageID) int {
	n := 0
	if _, ok := ix.AccountPrompts[id]; ok {
		n++
	}
	for _, set := range ix.AccountReplies {
		if _, ok := set[id]; ok {
			n++
		}
	}
	for _, set := range ix.RankingPolls {
		if _, ok := set[id]; ok {
			n++
		}
	}
	if _, ok := ix.DelegatePolls[id]; ok {
		n++
	}
	return n
}
