package consensus

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sim31/fractalgram/internal/models"
)

// ComposePrompt renders the account-prompt message for a platform. The result
// parses back with ParsePrompt for any platform without template-breaking
// characters.
func ComposePrompt(platform string) string {
	return RenderPrompt(platform)
}

// PromptPlatform is the inverse of ComposePrompt.
func PromptPlatform(text string) (string, bool) {
	return ParsePrompt(text)
}

// ResultMessage renders derived results as a chat report: one line per rank,
// a delegate line, the optional group number, and a submission link when the
// platform info carries a submit URL. Markdown formatting is resolved by the
// send path.
func ResultMessage(results models.ConsensusResults, info *models.ExtPlatformInfo) string {
	var b strings.Builder
	b.WriteString("**Based on the latest polls this seems to be the result:**\n\n")

	accountInfoURL := ""
	if info != nil {
		accountInfoURL = info.AccountInfoURL
	}

	for _, rank := range models.AllowedRanks {
		option, votes := "", ""
		if winner := results.Rankings[rank]; winner != nil {
			option = renderOption(winner.Option, accountInfoURL)
			votes = votesFraction(winner)
		}
		fmt.Fprintf(&b, "Level %d: %s     %s\n", rank, option, votes)
	}
	b.WriteString("\n")

	if results.Delegate != nil {
		option := renderOption(results.Delegate.Option, accountInfoURL)
		fmt.Fprintf(&b, "Delegate: %s    %s\n", option, votesFraction(results.Delegate))
	}
	if results.GroupNum != nil {
		fmt.Fprintf(&b, "Group number: %d\n", *results.GroupNum)
	}

	b.WriteString("\n\nPlease check if correct. 👍 if so.\n\n")

	if info != nil && info.SubmitURL != "" && info.Platform != "" {
		fmt.Fprintf(&b, "Submit here if this is correct: %s/%s",
			info.SubmitURL, submissionQuery(results, info.Platform))
	}

	return b.String()
}

func votesFraction(opt *models.ResultOption) string {
	if opt.Votes == 0 || opt.OfTotal == 0 {
		return ""
	}
	return fmt.Sprintf("%d / %d", opt.Votes, opt.OfTotal)
}

// renderOption rewrites the "(account@platform)" fragment of an option into
// a link against the account-info URL template, dropping the raw fragment
// from the visible text. Without a template the option passes through as-is.
func renderOption(option, accountInfoURL string) string {
	if accountInfoURL == "" {
		return option
	}
	m := optionRe.FindStringSubmatch(option)
	if m == nil {
		return option
	}
	name, account := m[1], m[2]
	target := accountInfoURL
	if strings.Contains(target, "{account}") {
		target = strings.ReplaceAll(target, "{account}", url.PathEscape(account))
	} else {
		target += url.PathEscape(account)
	}
	return fmt.Sprintf("%s ([%s](%s))", name, account, target)
}

// submissionQuery builds the submission query string. voteN carries the
// external account of the rank (7-N) winner so that vote1 is the top level;
// parameters with no value are omitted entirely.
func submissionQuery(results models.ConsensusResults, platform string) string {
	q := url.Values{}
	set := func(key string, opt *models.ResultOption) {
		if opt == nil || opt.User == nil {
			return
		}
		if acc := opt.User.ExtAccounts[platform]; acc != "" {
			q.Set(key, acc)
		}
	}

	set("delegate", results.Delegate)
	if results.GroupNum != nil {
		q.Set("groupnumber", strconv.Itoa(*results.GroupNum))
	}
	for n := 1; n <= 6; n++ {
		set("vote"+strconv.Itoa(n), results.Rankings[models.Rank(7-n)])
	}

	enc := q.Encode()
	if enc == "" {
		return ""
	}
	return "?" + enc
}
