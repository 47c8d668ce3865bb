package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/govboard/src/board/comments"
)

type Comments struct {
	repo *comments.Repository
}

func NewComments(repo *comments.Repository) Comments {
	return Comments{repo: repo}
}

func (h Comments) Create(c *gin.Context) {
	var req struct {
		PostID          int64  `json:"postId" binding:"required,min=1"`
		Type            string `json:"type" binding:"required,oneof=comment reply"`
		Content         string `json:"content" binding:"required"`
		ParentCommentID *int64 `json:"parentCommentId"`
		CommentID       *int64 `json:"commentId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	parent := req.ParentCommentID
	if parent == nil {
		parent = req.CommentID
	}

	comment, err := h.repo.Append(c.Request.Context(), comments.Draft{
		PostID:          req.PostID,
		WalletAddress:   c.GetString("addr"),
		Content:         req.Content,
		Type:            req.Type,
		ParentCommentID: parent,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}
