package models

// Rank is a level in the ranked-choice scheme. Valid ranks are 1 through 6.
type Rank int

const (
	MinRank Rank = 1
	MaxRank Rank = 6
)

// AllowedRanks lists the valid ranks in iteration order. Rank 1 is the senior
// slot: it is assigned first during derivation and rendered first in reports.
var AllowedRanks = []Rank{1, 2, 3, 4, 5, 6}

// Valid reports whether r is within the allowed rank range.
func (r Rank) Valid() bool {
	return r >= MinRank && r <= MaxRank
}

// ResultOption is a poll answer accepted as the group's decision for a rank
// or the delegate slot.
type ResultOption struct {
	Option  string   `json:"option"`
	Votes   int      `json:"votes,omitempty"`
	OfTotal int      `json:"of_total,omitempty"`
	User    *ExtUser `json:"user,omitempty"`
}

// ConsensusResults is a derived snapshot of the group's current decisions.
// It is recomputed on demand and never persisted.
type ConsensusResults struct {
	Rankings map[Rank]*ResultOption `json:"rankings"`
	Delegate *ResultOption          `json:"delegate,omitempty"`
	GroupNum *int                   `json:"group_num,omitempty"`
}

// ExtPlatformInfo describes an external voting platform: where results are
// submitted and, optionally, where account pages live. Either chosen from the
// preset table or entered by the user.
type ExtPlatformInfo struct {
	Name           string `yaml:"name" json:"name"`
	Platform       string `yaml:"platform" json:"platform"`
	SubmitURL      string `yaml:"submit_url" json:"submit_url"`
	AccountInfoURL string `yaml:"account_info_url,omitempty" json:"account_info_url,omitempty"`
}
