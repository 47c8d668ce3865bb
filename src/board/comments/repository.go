// Package comments stores threaded comments per post. Identity fields are
// never persisted on a comment; they are joined in on every read.
package comments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/policy"
	"github.com/stake-plus/govboard/src/board/types"
)

const (
	minContent = 2
	maxContent = 1000
)

// Identities is the slice of the identity registry comments rely on.
type Identities interface {
	Get(ctx context.Context, address string) (types.Identity, bool, error)
	Lookup(ctx context.Context, address string) (username, avatarURL string)
}

// Draft is an unsaved comment or reply.
type Draft struct {
	PostID          int64
	WalletAddress   string
	Content         string
	Type            string
	ParentCommentID *int64
}

type Repository struct {
	store      data.Store
	identities Identities
	sanitizer  *bluemonday.Policy
	now        func() time.Time
}

func NewRepository(store data.Store, identities Identities, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{
		store:      store,
		identities: identities,
		sanitizer:  bluemonday.StrictPolicy(),
		now:        now,
	}
}

func key(postID int64) string { return strconv.FormatInt(postID, 10) }

func (r *Repository) load(ctx context.Context, postID int64) ([]types.Comment, error) {
	var list []types.Comment
	if _, err := r.store.Get(ctx, data.Comments, key(postID), &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []types.Comment{}
	}
	return list, nil
}

// FindByPostID returns the thread newest comment first. Replies keep their
// stored order.
func (r *Repository) FindByPostID(ctx context.Context, postID int64) ([]types.Comment, error) {
	list, err := r.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		r.join(ctx, &list[i])
		if list[i].Replies == nil {
			list[i].Replies = []types.Comment{}
		}
		for j := range list[i].Replies {
			r.join(ctx, &list[i].Replies[j])
		}
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *Repository) join(ctx context.Context, c *types.Comment) {
	c.Username, c.AvatarURL = r.identities.Lookup(ctx, c.WalletAddress)
}

// Append validates and stores a comment or reply on an existing post.
func (r *Repository) Append(ctx context.Context, d Draft) (types.Comment, error) {
	var post types.Post
	found, err := r.store.Get(ctx, data.Posts, key(d.PostID), &post)
	if err != nil {
		return types.Comment{}, err
	}
	if !found {
		return types.Comment{}, types.ErrNotFound
	}
	if !policy.CommentsAllowed(post, r.now()) {
		return types.Comment{}, types.ErrCommentsLocked
	}

	if d.WalletAddress == "" {
		return types.Comment{}, types.ErrUnauthorized
	}
	author, _, err := r.identities.Get(ctx, d.WalletAddress)
	if err != nil {
		return types.Comment{}, err
	}
	if author.IsBanned() {
		return types.Comment{}, types.ErrUnauthorized
	}

	content := strings.TrimSpace(r.sanitizer.Sanitize(d.Content))
	if n := utf8.RuneCountInString(content); n < minContent || n > maxContent {
		return types.Comment{}, fmt.Errorf("%w: content must be %d to %d characters", types.ErrInvalidDraft, minContent, maxContent)
	}

	list, err := r.load(ctx, d.PostID)
	if err != nil {
		return types.Comment{}, err
	}

	parent := -1
	switch d.Type {
	case types.CommentTop:
		if d.ParentCommentID != nil {
			return types.Comment{}, fmt.Errorf("%w: a comment has no parent", types.ErrInvalidDraft)
		}
	case types.CommentReply:
		if d.ParentCommentID == nil {
			return types.Comment{}, types.ErrInvalidParent
		}
		for i := range list {
			if list[i].ID == *d.ParentCommentID {
				parent = i
				break
			}
		}
		if parent < 0 {
			return types.Comment{}, types.ErrInvalidParent
		}
	default:
		return types.Comment{}, fmt.Errorf("%w: unknown comment type %q", types.ErrInvalidDraft, d.Type)
	}

	id, err := r.store.NewID(ctx, data.Comments)
	if err != nil {
		return types.Comment{}, err
	}
	c := types.Comment{
		ID:              id,
		PostID:          d.PostID,
		WalletAddress:   d.WalletAddress,
		Content:         content,
		Type:            d.Type,
		ParentCommentID: d.ParentCommentID,
		CreatedAt:       r.now().Unix(),
		Replies:         []types.Comment{},
	}
	if parent >= 0 {
		list[parent].Replies = append(list[parent].Replies, c)
	} else {
		list = append(list, c)
	}
	if err := r.store.Set(ctx, data.Comments, key(d.PostID), list); err != nil {
		return types.Comment{}, err
	}

	r.join(ctx, &c)
	return c, nil
}

// Delete drops the whole thread of a post. Deleting a missing thread is a
// no-op.
func (r *Repository) Delete(ctx context.Context, postID int64) error {
	return r.store.Delete(ctx, data.Comments, key(postID))
}
