package consensus

import "github.com/sim31/fractalgram/internal/models"

// Kind is the classification of a single message considered in isolation.
// Replies to account prompts are relational (they depend on which prompts the
// index currently knows about) and are handled by Index, not here.
type Kind int

const (
	KindNone Kind = iota
	KindRanking
	KindDelegate
	KindPrompt
)

// Classification tags a message with its kind and the kind's parameter.
type Classification struct {
	Kind     Kind
	Rank     models.Rank // set for KindRanking
	Platform string      // set for KindPrompt
}

// Classify runs the classification chain over one message. Poll questions are
// checked before plain text, ranking before delegate. An unclassifiable
// message yields KindNone; that is not an error.
func Classify(msg *models.Message) Classification {
	if msg == nil {
		return Classification{Kind: KindNone}
	}
	if msg.Poll != nil {
		if rank, ok := ParseRankPoll(msg.Poll.Question); ok {
			return Classification{Kind: KindRanking, Rank: rank}
		}
		if IsDelegatePoll(msg.Poll.Question) {
			return Classification{Kind: KindDelegate}
		}
		return Classification{Kind: KindNone}
	}
	if platform, ok := ParsePrompt(msg.Text); ok {
		return Classification{Kind: KindPrompt, Platform: platform}
	}
	return Classification{Kind: KindNone}
}
