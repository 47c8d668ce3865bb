package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/govboard/src/board/config"
)

func attachRoutes(r *gin.Engine, cfg config.Config, rdb *redis.Client, svc Services) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	secret := []byte(cfg.JWTSecret)
	authH := NewAuth(rdb, secret, svc.Identities, svc.Oracle)
	postH := NewPosts(svc.Posts, svc.Comments, svc.Assets)
	commentH := NewComments(svc.Comments)
	voteH := NewVotes(svc.Posts, svc.Votes)
	addrH := NewAddresses(svc.Identities, svc.Assets)
	limiter := NewRateLimiter(30, time.Minute)

	if svc.Assets != nil {
		r.Static("/images", svc.Assets.Root())
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/challenge", authH.Challenge)
		v1.POST("/auth/verify", authH.Verify)

		v1.GET("/posts", postH.List)
		v1.GET("/posts/:id", postH.Find)
		v1.GET("/posts/:id/comments", postH.Comments)
		v1.GET("/votes/:id", voteH.Summary)
		v1.GET("/addresses/:address", addrH.Get)

		secured := v1.Group("")
		secured.Use(JWTMiddleware(secret), RateLimitMiddleware(limiter))
		secured.POST("/posts", postH.Create)
		secured.DELETE("/posts/:id", postH.Delete)
		secured.POST("/comments", commentH.Create)
		secured.POST("/votes", voteH.Cast)
		secured.PUT("/addresses/me", addrH.UpdateMe)
	}

	admin := v1.Group("/admin")
	admin.Use(JWTMiddleware(secret), AdminMiddleware(svc.Admins))
	{
		admin.PUT("/addresses/:address/ban", addrH.SetBan)
	}
}
