package models

// ExtUser is a chat member together with their known external-platform
// accounts. First name and usernames come from the membership store; external
// accounts are gathered from prompt replies in the chat.
type ExtUser struct {
	ID          string            `bson:"_id" json:"id"`
	FirstName   string            `bson:"first_name,omitempty" json:"first_name,omitempty"`
	Usernames   []string          `bson:"usernames,omitempty" json:"usernames,omitempty"`
	ExtAccounts map[string]string `bson:"ext_accounts,omitempty" json:"ext_accounts,omitempty"`
}

// AccountMap is the roster of chat members with known identity, keyed by
// user id.
type AccountMap map[string]*ExtUser
