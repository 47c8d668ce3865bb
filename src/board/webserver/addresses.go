package webserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/identity"
	"github.com/stake-plus/govboard/src/board/types"
)

type Addresses struct {
	registry *identity.Registry
	assets   *assets.Disk
}

func NewAddresses(registry *identity.Registry, disk *assets.Disk) Addresses {
	return Addresses{registry: registry, assets: disk}
}

func (a Addresses) Get(c *gin.Context) {
	addr := c.Param("address")
	rec, found, err := a.registry.Get(c.Request.Context(), addr)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		writeErr(c, types.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateMe edits the caller's own profile. Accepts JSON or a multipart
// form with an optional "avatar" file.
func (a Addresses) UpdateMe(c *gin.Context) {
	var req struct {
		DisplayName *string `json:"displayName" form:"displayName" binding:"omitempty,max=64"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		req.DisplayName = &name
	}

	var avatar string
	if strings.HasPrefix(c.ContentType(), "multipart/") && a.assets != nil {
		if fh, err := c.FormFile("avatar"); err == nil {
			f, err := fh.Open()
			if err != nil {
				writeErr(c, err)
				return
			}
			avatar, err = a.assets.SaveAvatar(fh.Filename, f)
			f.Close()
			if err != nil {
				writeErr(c, err)
				return
			}
		}
	}

	addr := c.GetString("addr")
	rec, err := a.registry.Upsert(c.Request.Context(), addr, identity.Patch{DisplayName: req.DisplayName}, avatar)
	if err != nil {
		if avatar != "" {
			if rmErr := a.assets.RemoveAsset(assets.AvatarPath(avatar)); rmErr != nil {
				log.Printf("webserver: discard avatar %s: %v", avatar, rmErr)
			}
		}
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a Addresses) SetBan(c *gin.Context) {
	var req struct {
		Banned *bool `json:"banned" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	addr := c.Param("address")
	rec, err := a.registry.Upsert(c.Request.Context(), addr, identity.Patch{Banned: req.Banned}, "")
	if err != nil {
		writeErr(c, err)
		return
	}
	log.Printf("webserver: %s set banned=%v on %s", c.GetString("addr"), *req.Banned, addr)
	c.JSON(http.StatusOK, rec)
}
