package webserver

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/comments"
	"github.com/stake-plus/govboard/src/board/config"
	"github.com/stake-plus/govboard/src/board/identity"
	"github.com/stake-plus/govboard/src/board/policy"
	"github.com/stake-plus/govboard/src/board/posts"
	"github.com/stake-plus/govboard/src/board/votes"
)

// Services are the repositories the HTTP layer exposes.
type Services struct {
	Posts      *posts.Repository
	Comments   *comments.Repository
	Votes      *votes.Ledger
	Identities *identity.Registry
	Assets     *assets.Disk
	Oracle     posts.BalanceOracle
	Admins     policy.Admins
}

func New(cfg config.Config, rdb *redis.Client, svc Services) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	attachRoutes(g, cfg, rdb, svc)
	return g
}
