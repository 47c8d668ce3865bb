package webserver

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/comments"
	"github.com/stake-plus/govboard/src/board/posts"
)

type Posts struct {
	repo     *posts.Repository
	comments *comments.Repository
	assets   *assets.Disk
}

func NewPosts(repo *posts.Repository, comments *comments.Repository, disk *assets.Disk) Posts {
	return Posts{repo: repo, comments: comments, assets: disk}
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid post id"})
		return 0, false
	}
	return id, true
}

func (p Posts) List(c *gin.Context) {
	filters := posts.Filters{
		Type:    c.Query("type"),
		Address: c.Query("address"),
		Query:   c.Query("query"),
	}
	page, err := p.repo.List(c.Request.Context(), filters,
		intQuery(c, "page", 1), intQuery(c, "limit", posts.DefaultLimit))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (p Posts) Find(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	det, found, err := p.repo.Find(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"err": "post not found"})
		return
	}
	c.JSON(http.StatusOK, det)
}

func (p Posts) Comments(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	list, err := p.comments.FindByPostID(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type createPostRequest struct {
	Type        string   `json:"type" form:"type" binding:"required"`
	Title       string   `json:"title" form:"title" binding:"required,max=255"`
	Description string   `json:"description" form:"description" binding:"max=20000"`
	Options     []string `json:"options" form:"options" binding:"max=20"`
	Tags        []string `json:"tags" form:"tags" binding:"max=20"`
	Votes       []int    `json:"votes" form:"votes"`
	Quorum      *int     `json:"quorum" form:"quorum"`
	Duration    int      `json:"duration" form:"duration" binding:"required,min=1,max=365"`
}

// Create accepts JSON or a multipart form with an optional "image" file.
func (p Posts) Create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var image string
	if strings.HasPrefix(c.ContentType(), "multipart/") && p.assets != nil {
		if fh, err := c.FormFile("image"); err == nil {
			f, err := fh.Open()
			if err != nil {
				writeErr(c, err)
				return
			}
			image, err = p.assets.SavePostImage(fh.Filename, f)
			f.Close()
			if err != nil {
				writeErr(c, err)
				return
			}
		}
	}

	post, err := p.repo.Create(c.Request.Context(), posts.Draft{
		Type:          req.Type,
		WalletAddress: c.GetString("addr"),
		Title:         req.Title,
		ImageURL:      image,
		Description:   req.Description,
		Options:       req.Options,
		Tags:          req.Tags,
		Votes:         req.Votes,
		Quorum:        req.Quorum,
		Duration:      req.Duration,
	})
	if err != nil {
		if image != "" {
			p.discardImage(image)
		}
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (p Posts) discardImage(name string) {
	for _, path := range []string{assets.PostImagePath(name), assets.PostThumbPath(name)} {
		if err := p.assets.RemoveAsset(path); err != nil {
			log.Printf("webserver: discard %s: %v", path, err)
		}
	}
}

func (p Posts) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := p.repo.Delete(c.Request.Context(), id, c.GetString("addr")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
