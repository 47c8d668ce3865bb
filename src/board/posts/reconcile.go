package posts

import (
	"context"
	"log"
	"time"

	"github.com/stake-plus/govboard/src/board/data"
)

// Sweep deletes comment threads and vote tallies whose post no longer
// exists, returning how many keys were removed.
func (r *Repository) Sweep(ctx context.Context) (int, error) {
	// Dependents are listed before posts so a post created mid-sweep can
	// never make its fresh thread look orphaned.
	dependents := make(map[string][]string, 2)
	for _, c := range []string{data.Comments, data.Votes} {
		keys, err := r.store.Keys(ctx, c)
		if err != nil {
			return 0, err
		}
		dependents[c] = keys
	}

	postKeys, err := r.store.Keys(ctx, data.Posts)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(postKeys))
	for _, k := range postKeys {
		live[k] = struct{}{}
	}

	removed := 0
	for collection, keys := range dependents {
		for _, k := range keys {
			if _, ok := live[k]; ok {
				continue
			}
			if err := r.store.Delete(ctx, collection, k); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (r *Repository) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				log.Printf("posts: sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("posts: sweep removed %d orphaned keys", n)
			}
		}
	}
}
