package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/govboard/src/board/posts"
	"github.com/stake-plus/govboard/src/board/types"
	"github.com/stake-plus/govboard/src/board/votes"
)

type Votes struct {
	posts  *posts.Repository
	ledger *votes.Ledger
}

func NewVotes(repo *posts.Repository, ledger *votes.Ledger) Votes {
	return Votes{posts: repo, ledger: ledger}
}

func (v Votes) Cast(c *gin.Context) {
	var req struct {
		PostID int64 `json:"postId" binding:"required,min=1"`
		Option *int  `json:"option" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	ctx := c.Request.Context()
	post, found, err := v.posts.Get(ctx, req.PostID)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		writeErr(c, types.ErrNotFound)
		return
	}

	tally, err := v.ledger.Cast(ctx, post, c.GetString("addr"), *req.Option)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"counts": tally.Counts})
}

// Summary returns the per-option counts, padded to the post's options.
func (v Votes) Summary(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	post, found, err := v.posts.Get(ctx, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		writeErr(c, types.ErrNotFound)
		return
	}

	tally, _, err := v.ledger.Tally(ctx, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	counts := make([]int, len(post.Options))
	copy(counts, tally.Counts)
	c.JSON(http.StatusOK, gin.H{
		"options": post.Options,
		"counts":  counts,
		"quorum":  post.Quorum,
		"closed":  v.posts.IsClosed(post),
	})
}
