// Package consensus implements the consensus-message core: classifying chat
// messages as account prompts, prompt replies, ranking polls or delegate
// polls; maintaining a per-chat index of those classifications as messages
// come and go; deriving winners from poll tallies; and composing the prompt
// and report messages sent back into the chat.
package consensus

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sim31/fractalgram/internal/models"
)

// Message templates are fixed strings so that classification can run on exact
// matches. Each template keeps its render and parse halves together: whatever
// Render produces, TryParse must accept, and nothing else should.

const (
	accountPromptFormat  = "Please reply to this message with your %s account name."
	rankPollFormat       = "Level %d poll"
	delegatePollQuestion = "Delegate selection poll"
)

var (
	accountPromptRe = regexp.MustCompile(`^Please reply to this message with your (.+) account name\.$`)
	rankPollRe      = regexp.MustCompile(`^Level ([1-6]) poll$`)
)

// RenderPrompt renders the account-prompt message for a platform.
func RenderPrompt(platform string) string {
	return fmt.Sprintf(accountPromptFormat, platform)
}

// ParsePrompt recovers the platform from a rendered account prompt.
func ParsePrompt(text string) (string, bool) {
	m := accountPromptRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RenderRankPoll renders the poll question for a ranking poll.
func RenderRankPoll(rank models.Rank) string {
	return fmt.Sprintf(rankPollFormat, rank)
}

// ParseRankPoll recovers the rank from a ranking-poll question.
func ParseRankPoll(question string) (models.Rank, bool) {
	m := rankPollRe.FindStringSubmatch(question)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return models.Rank(n), true
}

// RenderDelegatePoll returns the delegate-selection poll question.
func RenderDelegatePoll() string {
	return delegatePollQuestion
}

// IsDelegatePoll reports whether question is the delegate-selection question.
func IsDelegatePoll(question string) bool {
	return question == delegatePollQuestion
}
