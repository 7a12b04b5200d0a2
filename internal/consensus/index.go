package consensus

import (
	"sort"

	"github.com/sim31/fractalgram/internal/models"
)

// IDSet is a set of message ids.
type IDSet map[models.MessageID]struct{}

// Index is the per-chat classification of consensus messages. A message id
// appears in at most one bucket. The index is a projection over the chat's
// message set: it can always be rebuilt from scratch, and every operation
// returns a new value, leaving the receiver untouched.
//
// All operations take byID, the chat's current message set. It must already
// include messages being added; messages being deleted may be present or
// already removed.
type Index struct {
	// AccountPrompts maps a prompt message id to the platform it asks about.
	AccountPrompts map[models.MessageID]string `json:"account_prompts"`
	// AccountReplies maps a platform to the ids of replies to its prompts.
	AccountReplies map[string]IDSet `json:"account_replies"`
	// RankingPolls maps a rank to the ids of its ranking-poll messages.
	RankingPolls map[models.Rank]IDSet `json:"ranking_polls"`
	// DelegatePolls holds the ids of delegate-selection poll messages.
	DelegatePolls IDSet `json:"delegate_polls"`
}

// NewIndex returns an empty index.
func NewIndex() Index {
	return Index{
		AccountPrompts: map[models.MessageID]string{},
		AccountReplies: map[string]IDSet{},
		RankingPolls:   map[models.Rank]IDSet{},
		DelegatePolls:  IDSet{},
	}
}

func (ix Index) clone() Index {
	out := NewIndex()
	for id, platform := range ix.AccountPrompts {
		out.AccountPrompts[id] = platform
	}
	for platform, set := range ix.AccountReplies {
		cp := make(IDSet, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out.AccountReplies[platform] = cp
	}
	for rank, set := range ix.RankingPolls {
		cp := make(IDSet, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out.RankingPolls[rank] = cp
	}
	for id := range ix.DelegatePolls {
		out.DelegatePolls[id] = struct{}{}
	}
	return out
}

// Contains reports whether id is tracked in any bucket.
func (ix Index) Contains(id models.MessageID) bool {
	if _, ok := ix.AccountPrompts[id]; ok {
		return true
	}
	for _, set := range ix.AccountReplies {
		if _, ok := set[id]; ok {
			return true
		}
	}
	for _, set := range ix.RankingPolls {
		if _, ok := set[id]; ok {
			return true
		}
	}
	_, ok := ix.DelegatePolls[id]
	return ok
}

// MessagesAdded classifies newly arrived messages in ascending id order and
// returns the updated index. Ids already tracked are skipped, so replaying a
// batch is harmless. When a new prompt is learned, the whole chat is
// re-scanned for replies that predate it.
func (ix Index) MessagesAdded(byID map[models.MessageID]*models.Message, msgs []*models.Message) Index {
	var pending []*models.Message
	for _, m := range msgs {
		if m != nil && !ix.Contains(m.ID) {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return ix
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	out := ix.clone()
	for _, m := range pending {
		out.place(m, byID)
	}
	return out
}

// MessageUpdated re-evaluates one edited message: any stale classification is
// retracted first, then the full classification chain runs against the new
// contents. When none of the tracked fields changed the index is returned
// as-is; re-running the chain anyway would land in the same state.
func (ix Index) MessageUpdated(byID map[models.MessageID]*models.Message, prior, updated *models.Message) Index {
	if updated == nil {
		return ix
	}
	if prior != nil &&
		prior.Text == updated.Text &&
		prior.PollQuestion() == updated.PollQuestion() &&
		prior.ReplyToID == updated.ReplyToID {
		return ix
	}
	out := ix.clone()
	out.retract(updated.ID, byID)
	out.place(updated, byID)
	return out
}

// MessagesDeleted removes each id from whichever bucket holds it. Deleting a
// prompt also drops the replies recorded under it: without the prompt they
// are no longer derivable from the message set.
func (ix Index) MessagesDeleted(byID map[models.MessageID]*models.Message, ids []models.MessageID) Index {
	out := ix.clone()
	for _, id := range ids {
		out.retract(id, byID)
	}
	return out
}

// Rebuild discards all state and reclassifies the full message set. The
// result is what the incremental operations converge to.
func Rebuild(byID map[models.MessageID]*models.Message) Index {
	msgs := make([]*models.Message, 0, len(byID))
	for _, m := range byID {
		msgs = append(msgs, m)
	}
	return NewIndex().MessagesAdded(byID, msgs)
}

// place classifies one message into ix. The receiver must be an unshared
// clone. No-op if the id is already tracked.
func (ix Index) place(msg *models.Message, byID map[models.MessageID]*models.Message) {
	if ix.Contains(msg.ID) {
		return
	}
	c := Classify(msg)
	switch c.Kind {
	case KindRanking:
		set := ix.RankingPolls[c.Rank]
		if set == nil {
			set = IDSet{}
			ix.RankingPolls[c.Rank] = set
		}
		set[msg.ID] = struct{}{}
	case KindDelegate:
		ix.DelegatePolls[msg.ID] = struct{}{}
	case KindPrompt:
		ix.AccountPrompts[msg.ID] = c.Platform
		// Replies may predate their prompt: pick up everything already in
		// the chat that answers it.
		for _, m := range byID {
			if m != nil && m.ID != msg.ID && m.ReplyToID == msg.ID {
				ix.placeReply(m)
			}
		}
	case KindNone:
		ix.placeReply(msg)
	}
}

// placeReply records msg under its platform's reply bucket if it answers a
// known prompt. Messages that classify as something stronger are never
// replies, keeping buckets mutually exclusive.
func (ix Index) placeReply(msg *models.Message) {
	if msg.ReplyToID == 0 || msg.SenderID == "" || msg.Text == "" {
		return
	}
	if ix.Contains(msg.ID) {
		return
	}
	if c := Classify(msg); c.Kind != KindNone {
		return
	}
	platform, ok := ix.AccountPrompts[msg.ReplyToID]
	if !ok {
		return
	}
	set := ix.AccountReplies[platform]
	if set == nil {
		set = IDSet{}
		ix.AccountReplies[platform] = set
	}
	set[msg.ID] = struct{}{}
}

// retract removes id from whichever bucket holds it. Retracting a prompt
// cascades to the replies that answered it. The receiver must be an unshared
// clone. Empty buckets are dropped so that an incrementally maintained index
// compares equal to a rebuilt one.
func (ix Index) retract(id models.MessageID, byID map[models.MessageID]*models.Message) {
	if platform, ok := ix.AccountPrompts[id]; ok {
		delete(ix.AccountPrompts, id)
		set := ix.AccountReplies[platform]
		for rid := range set {
			m := byID[rid]
			if m == nil || m.ReplyToID == id {
				delete(set, rid)
			}
		}
		if len(set) == 0 {
			delete(ix.AccountReplies, platform)
		}
		return
	}
	for platform, set := range ix.AccountReplies {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(ix.AccountReplies, platform)
			}
			return
		}
	}
	for rank, set := range ix.RankingPolls {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(ix.RankingPolls, rank)
			}
			return
		}
	}
	delete(ix.DelegatePolls, id)
}

// latest returns the most recently created message among ids: highest date,
// ties broken by highest id.
func latest(ids IDSet, byID map[models.MessageID]*models.Message) *models.Message {
	var best *models.Message
	for id := range ids {
		m := byID[id]
		if m == nil {
			continue
		}
		if best == nil || m.Date > best.Date || (m.Date == best.Date && m.ID > best.ID) {
			best = m
		}
	}
	return best
}

// LatestDelegatePoll returns the most recently created delegate poll, or nil.
func (ix Index) LatestDelegatePoll(byID map[models.MessageID]*models.Message) *models.Message {
	return latest(ix.DelegatePolls, byID)
}

// LatestRankingPoll returns the most recently created ranking poll for rank,
// or nil.
func (ix Index) LatestRankingPoll(rank models.Rank, byID map[models.MessageID]*models.Message) *models.Message {
	return latest(ix.RankingPolls[rank], byID)
}

// LatestPrompt returns the most recently created account prompt, or nil.
func (ix Index) LatestPrompt(byID map[models.MessageID]*models.Message) *models.Message {
	ids := make(IDSet, len(ix.AccountPrompts))
	for id := range ix.AccountPrompts {
		ids[id] = struct{}{}
	}
	return latest(ids, byID)
}
