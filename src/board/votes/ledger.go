// Package votes owns the per-post vote tallies.
package votes

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/policy"
	"github.com/stake-plus/govboard/src/board/types"
)

// IdentityReader is the slice of the identity registry the ledger needs.
type IdentityReader interface {
	Get(ctx context.Context, address string) (types.Identity, bool, error)
}

type Ledger struct {
	store      data.Store
	identities IdentityReader
	now        func() time.Time
}

func NewLedger(store data.Store, identities IdentityReader, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, identities: identities, now: now}
}

func (l *Ledger) Tally(ctx context.Context, postID int64) (types.Tally, bool, error) {
	var t types.Tally
	found, err := l.store.Get(ctx, data.Votes, strconv.FormatInt(postID, 10), &t)
	return t, found, err
}

// Cast records address's ballot for option, replacing any earlier ballot
// by the same address. The read-modify-write is not atomic; concurrent
// casts on one post resolve last-write-wins.
func (l *Ledger) Cast(ctx context.Context, post types.Post, address string, option int) (types.Tally, error) {
	if policy.IsClosed(post, l.now()) {
		return types.Tally{}, types.ErrClosed
	}
	if option < 0 || option >= len(post.Options) {
		return types.Tally{}, fmt.Errorf("%w: %d", types.ErrInvalidOption, option)
	}
	if l.identities != nil {
		rec, _, err := l.identities.Get(ctx, address)
		if err != nil {
			return types.Tally{}, err
		}
		if rec.IsBanned() {
			return types.Tally{}, types.ErrUnauthorized
		}
	}

	t, found, err := l.Tally(ctx, post.ID)
	if err != nil {
		return types.Tally{}, err
	}
	if !found {
		t = newTally(post)
	}
	if len(t.Counts) < len(post.Options) {
		t.Counts = append(t.Counts, make([]int, len(post.Options)-len(t.Counts))...)
	}
	if t.Ballots == nil {
		t.Ballots = make(map[string]int)
	}

	if prev, ok := t.Ballots[address]; ok {
		if prev == option {
			return t, nil
		}
		if prev >= 0 && prev < len(t.Counts) && t.Counts[prev] > 0 {
			t.Counts[prev]--
		}
	}
	t.Ballots[address] = option
	t.Counts[option]++

	if err := l.store.Set(ctx, data.Votes, strconv.FormatInt(post.ID, 10), t); err != nil {
		return types.Tally{}, err
	}
	return t, nil
}

// newTally starts from the counts the post was created with, if any.
func newTally(post types.Post) types.Tally {
	counts := make([]int, len(post.Options))
	if len(post.Votes) == len(post.Options) {
		copy(counts, post.Votes)
	}
	return types.Tally{Counts: counts, Ballots: make(map[string]int)}
}

func (l *Ledger) Delete(ctx context.Context, postID int64) error {
	return l.store.Delete(ctx, data.Votes, strconv.FormatInt(postID, 10))
}
