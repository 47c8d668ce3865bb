package types

import "github.com/shopspring/decimal"

// Post types
const (
	PostProposal   = "proposal"
	PostIssue      = "issue"
	PostDiscussion = "discussion"
	PostElection   = "election"
)

// Comment types
const (
	CommentTop   = "comment"
	CommentReply = "reply"
)

// Identity is the profile and session record kept per wallet address.
// Address is never persisted; it is the key of the record.
type Identity struct {
	Address       string           `json:"address,omitempty"`
	DisplayName   string           `json:"displayName,omitempty"`
	AvatarURL     string           `json:"avatarUrl,omitempty"`
	Banned        *bool            `json:"banned,omitempty"`
	Balance       *Amount          `json:"balance,omitempty"`
	KYC           *bool            `json:"kyc,omitempty"`
	RegisteredAt  int64            `json:"registeredAt"`
	LastSessionAt int64            `json:"lastSessionAt"`
}

// Amount is a token amount that encodes as a bare JSON number with every
// digit kept. Quoted strings are accepted on decode.
type Amount struct {
	decimal.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// IsBanned reports whether the identity carries a ban.
func (i Identity) IsBanned() bool {
	return i.Banned != nil && *i.Banned
}

// Post is a board item. Everything except the computed display fields is
// immutable once stored.
type Post struct {
	ID                    int64    `json:"id"`
	Type                  string   `json:"type"`
	WalletAddress         string   `json:"walletAddress"`
	Title                 string   `json:"title"`
	ImageURL              string   `json:"imageUrl,omitempty"`
	Description           string   `json:"description"`
	Options               []string `json:"options"`
	Tags                  []string `json:"tags"`
	Votes                 []int    `json:"votes,omitempty"`
	Quorum                *int     `json:"quorum,omitempty"`
	CreatedAt             int64    `json:"createdAt"`
	ExpiresAt             int64    `json:"expiresAt"`
	TotalCurrentAddresses int64    `json:"totalCurrentAddresses"`

	// Display only, joined at read time.
	Username string `json:"username,omitempty"`
}

// Comment is a top-level comment or a reply. Replies live inside their
// parent's Replies and are never nested further.
type Comment struct {
	ID              int64     `json:"id"`
	PostID          int64     `json:"postId"`
	WalletAddress   string    `json:"walletAddress"`
	Content         string    `json:"content"`
	Type            string    `json:"type"`
	ParentCommentID *int64    `json:"parentCommentId,omitempty"`
	CreatedAt       int64     `json:"createdAt"`
	Replies         []Comment `json:"replies"`

	// Display only, joined at read time.
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Tally aggregates the ballots cast on a post.
type Tally struct {
	Counts  []int          `json:"counts"`
	Ballots map[string]int `json:"ballots"`
}

// Setting is a runtime configuration row.
type Setting struct {
	ID    uint64 `gorm:"primaryKey"`
	Name  string `gorm:"size:128;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}
