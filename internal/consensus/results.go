package consensus

import (
	"fmt"
	"regexp"

	"github.com/sim31/fractalgram/internal/models"
)

// Poll options name members as "<name> (<account>@<platform>)", falling back
// to a bare name when no external account is known for the platform.
var optionRe = regexp.MustCompile(`^(.+) \((.+)@(.+)\)$`)

// AccountOption renders a roster member as a poll option string.
func AccountOption(user *models.ExtUser, platform string) string {
	name := user.ID
	if user.FirstName != "" {
		name = user.FirstName
	} else if len(user.Usernames) > 0 {
		name = user.Usernames[0]
	}
	if platform != "" {
		if acc, ok := user.ExtAccounts[platform]; ok && acc != "" {
			return fmt.Sprintf("%s (%s@%s)", name, acc, platform)
		}
	}
	return name
}

// AccountOptions renders the whole roster as poll options, ordered by the
// given user ids so that generated polls are stable.
func AccountOptions(roster models.AccountMap, order []string, platform string) []string {
	out := make([]string, 0, len(order))
	for _, id := range order {
		if user, ok := roster[id]; ok {
			out = append(out, AccountOption(user, platform))
		}
	}
	return out
}

// ResolveOption matches a poll option string back to a roster member. Two
// strategies run over the text: the "<name> (<account>@<platform>)" form and
// a bare name. The match must be unambiguous: exactly one member matches by
// name, and an embedded account fragment, if present, must not point at
// anyone else. Anything less yields nil.
func ResolveOption(roster models.AccountMap, option string) *models.ExtUser {
	name := option
	var account, platform string
	if m := optionRe.FindStringSubmatch(option); m != nil {
		name, account, platform = m[1], m[2], m[3]
	}

	var nameMatches, accountMatches []string
	for id, user := range roster {
		switch {
		case user.FirstName == name:
			nameMatches = append(nameMatches, id)
		case len(user.Usernames) > 0 && user.Usernames[0] == name:
			nameMatches = append(nameMatches, id)
		case id == name:
			nameMatches = append(nameMatches, id)
		}
		if account != "" && platform != "" && user.ExtAccounts[platform] == account {
			accountMatches = append(accountMatches, id)
		}
	}

	if len(nameMatches) != 1 {
		return nil
	}
	if len(accountMatches) > 1 {
		return nil
	}
	if len(accountMatches) == 1 && accountMatches[0] != nameMatches[0] {
		return nil
	}
	return roster[nameMatches[0]]
}

// DeriveWinner finds the winning option of a live poll. A winner is declared
// only when a single option holds the strictly highest, non-zero vote count
// and its text resolves to exactly one roster member; a tie among leaders or
// an unresolvable leader yields nil.
func DeriveWinner(poll *models.Poll, roster models.AccountMap, platform string) *models.ResultOption {
	if poll == nil || len(poll.Results) == 0 {
		return nil
	}

	winnerVotes := 0
	winnerCount := 0
	var winner *models.ResultOption
	for _, res := range poll.Results {
		switch {
		case res.VoterCount > winnerVotes:
			answer := poll.Answer(res.Option)
			var user *models.ExtUser
			if answer != nil {
				user = ResolveOption(roster, answer.Text)
			}
			if user == nil {
				// The leading option names nobody we know; no result can
				// be trusted from this poll.
				return nil
			}
			winner = &models.ResultOption{
				Option:  AccountOption(user, platform),
				Votes:   res.VoterCount,
				OfTotal: len(roster),
				User:    user,
			}
			winnerVotes = res.VoterCount
			winnerCount = 1
		case res.VoterCount == winnerVotes:
			winnerCount++
		}
	}

	if winnerCount != 1 || winnerVotes == 0 {
		return nil
	}
	return winner
}

// GuessResults derives the group's current decisions from the index and the
// live message set. The delegate comes from the latest delegate poll; each
// rank from the latest poll in its bucket, iterated in rank order, with every
// member winning at most one slot. When exactly one member and one rank slot
// remain, the member is assigned by elimination without a poll.
func GuessResults(
	ix Index,
	byID map[models.MessageID]*models.Message,
	roster models.AccountMap,
	platform string,
) models.ConsensusResults {
	results := models.ConsensusResults{Rankings: map[models.Rank]*models.ResultOption{}}

	if poll := ix.LatestDelegatePoll(byID); poll != nil {
		results.Delegate = DeriveWinner(poll.Poll, roster, platform)
	}

	toRank := make(map[string]struct{}, len(roster))
	for id := range roster {
		toRank[id] = struct{}{}
	}
	if results.Delegate != nil && results.Delegate.User != nil {
		delete(toRank, results.Delegate.User.ID)
	}

	open := make(map[models.Rank]struct{})
	for i, rank := range models.AllowedRanks {
		if i >= len(toRank) {
			break
		}
		open[rank] = struct{}{}
	}

	for _, rank := range models.AllowedRanks {
		poll := ix.LatestRankingPoll(rank, byID)
		if poll == nil {
			continue
		}
		winner := DeriveWinner(poll.Poll, roster, platform)
		if winner == nil || winner.User == nil {
			continue
		}
		if _, ok := toRank[winner.User.ID]; !ok {
			continue
		}
		results.Rankings[rank] = winner
		delete(toRank, winner.User.ID)
		delete(open, rank)
	}

	// Closure by elimination: the last member takes the last open slot.
	if len(toRank) == 1 && len(open) == 1 {
		var userID string
		for id := range toRank {
			userID = id
		}
		var rank models.Rank
		for r := range open {
			rank = r
		}
		user := roster[userID]
		results.Rankings[rank] = &models.ResultOption{
			Option: AccountOption(user, platform),
			User:   user,
		}
	}

	return results
}
