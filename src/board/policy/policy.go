// Package policy holds the side-effect free authorization rules for posts
// and comments.
package policy

import (
	"time"

	"github.com/stake-plus/govboard/src/board/types"
)

// Admins is the set of wallet addresses allowed to delete any post.
type Admins map[string]struct{}

func NewAdmins(addresses []string) Admins {
	a := make(Admins, len(addresses))
	for _, addr := range addresses {
		if addr != "" {
			a[addr] = struct{}{}
		}
	}
	return a
}

func (a Admins) Contains(address string) bool {
	_, ok := a[address]
	return ok
}

// CanDelete allows the post's author and any administrator.
func CanDelete(post types.Post, requester string, admins Admins) bool {
	if requester == "" {
		return false
	}
	return requester == post.WalletAddress || admins.Contains(requester)
}

func IsClosed(post types.Post, now time.Time) bool {
	return post.ExpiresAt-now.Unix() < 0
}

// CommentsAllowed is false only while an election has time left. At the
// exact expiry second comments open even though IsClosed still reports false.
func CommentsAllowed(post types.Post, now time.Time) bool {
	return !(post.Type == types.PostElection && post.ExpiresAt > now.Unix())
}
