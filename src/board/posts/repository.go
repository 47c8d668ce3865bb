// Package posts persists board posts and composes the feed and detail views.
package posts

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/policy"
	"github.com/stake-plus/govboard/src/board/types"
)

const (
	secondsPerDay = 24 * 3600
	DefaultLimit  = 10
	MaxLimit      = 100
)

type Identities interface {
	Get(ctx context.Context, address string) (types.Identity, bool, error)
	Lookup(ctx context.Context, address string) (username, avatarURL string)
	Count(ctx context.Context) (int64, error)
}

type Comments interface {
	FindByPostID(ctx context.Context, postID int64) ([]types.Comment, error)
	Delete(ctx context.Context, postID int64) error
}

type Votes interface {
	Tally(ctx context.Context, postID int64) (types.Tally, bool, error)
	Delete(ctx context.Context, postID int64) error
}

type BalanceOracle interface {
	TokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

type AssetRemover interface {
	RemoveAsset(path string) error
}

// Deps are the collaborators of a Repository. Oracle and Assets may be nil:
// balances then render as unavailable and image cleanup is skipped.
type Deps struct {
	Identities  Identities
	Comments    Comments
	Votes       Votes
	Oracle      BalanceOracle
	Assets      AssetRemover
	Admins      policy.Admins
	TokenSymbol string
	Now         func() time.Time
}

type Repository struct {
	store data.Store
	Deps
	titles       *bluemonday.Policy
	descriptions *bluemonday.Policy
}

func NewRepository(store data.Store, deps Deps) *Repository {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TokenSymbol == "" {
		deps.TokenSymbol = "BEBE"
	}

	descriptions := bluemonday.StrictPolicy()
	descriptions.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	descriptions.AllowElements("ul", "ol", "li")
	descriptions.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	descriptions.AllowAttrs("href").OnElements("a")
	descriptions.RequireParseableURLs(true)
	descriptions.AddTargetBlankToFullyQualifiedLinks(true)
	descriptions.RequireNoFollowOnLinks(true)

	return &Repository{
		store:        store,
		Deps:         deps,
		titles:       bluemonday.StrictPolicy(),
		descriptions: descriptions,
	}
}

// Draft is a post as submitted by its author.
type Draft struct {
	Type          string
	WalletAddress string
	Title         string
	ImageURL      string
	Description   string
	Options       []string
	Tags          []string
	Votes         []int
	Quorum        *int
	Duration      int // days
}

// Detail is the composite view of a single post.
type Detail struct {
	Post            types.Post      `json:"post"`
	Address         *types.Identity `json:"address"`
	Votes           *types.Tally    `json:"votes"`
	Comments        []types.Comment `json:"comments"`
	Closed          bool            `json:"closed"`
	CommentsAllowed bool            `json:"commentsAllowed"`
}

type Filters struct {
	Type    string
	Address string
	Query   string
}

type Page struct {
	Posts       []types.Post `json:"posts"`
	TotalCount  int          `json:"totalCount"`
	TotalPages  int          `json:"totalPages"`
	CurrentPage int          `json:"currentPage"`
}

func key(id int64) string { return strconv.FormatInt(id, 10) }

// CanonicalOptions returns the fixed options of typed posts and the cleaned
// free-form options of the others.
func CanonicalOptions(postType string, supplied []string) ([]string, error) {
	switch postType {
	case types.PostProposal:
		return []string{"For", "Against"}, nil
	case types.PostIssue:
		return []string{"Resolved", "Unresolved"}, nil
	case types.PostDiscussion, types.PostElection:
		return cleanList(supplied), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidType, postType)
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Repository) Create(ctx context.Context, d Draft) (types.Post, error) {
	options, err := CanonicalOptions(d.Type, d.Options)
	if err != nil {
		return types.Post{}, err
	}
	if d.WalletAddress == "" {
		return types.Post{}, types.ErrUnauthorized
	}
	// titles are plain text: strip markup, keep the characters as typed
	title := strings.TrimSpace(html.UnescapeString(r.titles.Sanitize(d.Title)))
	if title == "" {
		return types.Post{}, fmt.Errorf("%w: title is required", types.ErrInvalidDraft)
	}
	if d.Duration < 1 {
		return types.Post{}, fmt.Errorf("%w: duration must be at least one day", types.ErrInvalidDraft)
	}
	if len(d.Votes) > 0 && len(d.Votes) != len(options) {
		return types.Post{}, fmt.Errorf("%w: %d votes for %d options", types.ErrInvalidDraft, len(d.Votes), len(options))
	}

	author, _, err := r.Identities.Get(ctx, d.WalletAddress)
	if err != nil {
		return types.Post{}, err
	}
	if author.IsBanned() {
		return types.Post{}, types.ErrUnauthorized
	}

	registered, err := r.Identities.Count(ctx)
	if err != nil {
		return types.Post{}, err
	}

	now := r.Now().Unix()
	post := types.Post{
		Type:                  d.Type,
		WalletAddress:         d.WalletAddress,
		Title:                 title,
		ImageURL:              d.ImageURL,
		Description:           r.descriptions.Sanitize(d.Description),
		Options:               options,
		Tags:                  cleanList(d.Tags),
		Votes:                 d.Votes,
		Quorum:                d.Quorum,
		CreatedAt:             now,
		ExpiresAt:             now + int64(d.Duration)*secondsPerDay,
		TotalCurrentAddresses: registered,
	}

	post.ID, err = r.store.NewID(ctx, data.Posts)
	if err != nil {
		return types.Post{}, err
	}
	if err := r.store.Set(ctx, data.Posts, key(post.ID), post); err != nil {
		return types.Post{}, err
	}

	var stored types.Post
	found, err := r.store.Get(ctx, data.Posts, key(post.ID), &stored)
	if err != nil {
		return types.Post{}, err
	}
	if !found {
		return types.Post{}, fmt.Errorf("post %d vanished after write", post.ID)
	}
	return stored, nil
}

func (r *Repository) get(ctx context.Context, id int64) (types.Post, bool, error) {
	var p types.Post
	found, err := r.store.Get(ctx, data.Posts, key(id), &p)
	return p, found, err
}

// Find composes the detail view. found is false when no such post exists.
func (r *Repository) Find(ctx context.Context, id int64) (Detail, bool, error) {
	post, found, err := r.get(ctx, id)
	if err != nil || !found {
		return Detail{}, found, err
	}

	post.Description = r.ExpandBalances(ctx, post.Description)
	post.Username, _ = r.Identities.Lookup(ctx, post.WalletAddress)

	det := Detail{
		Post:            post,
		Closed:          r.IsClosed(post),
		CommentsAllowed: r.CommentsAllowed(post),
	}

	if rec, ok, err := r.Identities.Get(ctx, post.WalletAddress); err != nil {
		return Detail{}, false, err
	} else if ok {
		det.Address = &rec
	}

	if tally, ok, err := r.Votes.Tally(ctx, id); err != nil {
		return Detail{}, false, err
	} else if ok {
		det.Votes = &tally
	}

	det.Comments, err = r.Comments.FindByPostID(ctx, id)
	if err != nil {
		return Detail{}, false, err
	}
	return det, true, nil
}

// all loads every post in creation order.
func (r *Repository) all(ctx context.Context) ([]types.Post, error) {
	keys, err := r.store.Keys(ctx, data.Posts)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			log.Printf("posts: skipping malformed key %q", k)
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]types.Post, 0, len(ids))
	for _, id := range ids {
		p, found, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if found { // deleted since the key listing
			out = append(out, p)
		}
	}
	return out, nil
}

// List filters by type, then address, then free-text query, and returns
// one page newest first.
func (r *Repository) List(ctx context.Context, f Filters, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	posts, err := r.all(ctx)
	if err != nil {
		return Page{}, err
	}

	filtered := posts[:0]
	query := strings.ToLower(strings.TrimSpace(f.Query))
	for _, p := range posts {
		if f.Type != "" && f.Type != "all" && p.Type != f.Type {
			continue
		}
		if f.Address != "" && p.WalletAddress != f.Address {
			continue
		}
		if query != "" && !Matches(p, query) {
			continue
		}
		filtered = append(filtered, p)
	}

	total := len(filtered)
	skip := (page - 1) * limit
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}
	slice := make([]types.Post, 0, end-skip)
	for i := end - 1; i >= skip; i-- {
		p := filtered[i]
		p.Username, _ = r.Identities.Lookup(ctx, p.WalletAddress)
		slice = append(slice, p)
	}

	return Page{
		Posts:       slice,
		TotalCount:  total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
	}, nil
}

// Matches reports whether the lower-cased query occurs in the post's
// title, a tag, the description or its option labels. The description is
// matched with entities decoded. Option labels are also matched with
// whitespace removed.
func Matches(p types.Post, query string) bool {
	if strings.Contains(strings.ToLower(p.Title), query) ||
		strings.Contains(strings.ToLower(html.UnescapeString(p.Description)), query) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	options := strings.ToLower(strings.Join(p.Options, " "))
	if strings.Contains(options, query) {
		return true
	}
	return strings.Contains(strings.Join(strings.Fields(options), ""), query)
}

// Delete removes a post and, best effort, its comments, votes and images.
// The cascade is not atomic; leftovers are collected by Sweep.
func (r *Repository) Delete(ctx context.Context, id int64, requester string) error {
	post, found, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return types.ErrNotFound
	}
	if !policy.CanDelete(post, requester, r.Admins) {
		return types.ErrUnauthorized
	}

	if err := r.store.Delete(ctx, data.Posts, key(id)); err != nil {
		return err
	}
	if err := r.Comments.Delete(ctx, id); err != nil {
		log.Printf("posts: delete comments of %d: %v", id, err)
	}
	if err := r.Votes.Delete(ctx, id); err != nil {
		log.Printf("posts: delete votes of %d: %v", id, err)
	}

	if post.ImageURL != "" && r.Assets != nil {
		for _, p := range []string{assets.PostImagePath(post.ImageURL), assets.PostThumbPath(post.ImageURL)} {
			if err := r.Assets.RemoveAsset(p); err != nil {
				log.Printf("posts: remove asset %s: %v", p, err)
			}
		}
	}
	log.Printf("posts: %s deleted post %d", requester, id)
	return nil
}

func (r *Repository) IsClosed(post types.Post) bool {
	return policy.IsClosed(post, r.Now())
}

func (r *Repository) CommentsAllowed(post types.Post) bool {
	return policy.CommentsAllowed(post, r.Now())
}

// Get returns the stored post without any computed fields.
func (r *Repository) Get(ctx context.Context, id int64) (types.Post, bool, error) {
	return r.get(ctx, id)
}
