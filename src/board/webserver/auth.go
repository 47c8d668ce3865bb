package webserver

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/identity"
	"github.com/stake-plus/govboard/src/board/posts"
)

type Auth struct {
	rdb        *redis.Client
	jwtSecret  []byte
	identities *identity.Registry
	oracle     posts.BalanceOracle
}

func NewAuth(rdb *redis.Client, secret []byte, identities *identity.Registry, oracle posts.BalanceOracle) Auth {
	return Auth{rdb: rdb, jwtSecret: secret, identities: identities, oracle: oracle}
}

func (a Auth) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
		Method  string `json:"method"  binding:"required,oneof=polkadotjs solana"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	nonce := uuid.NewString()
	if err := data.SetNonce(c.Request.Context(), a.rdb, req.Address, nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// Verify checks the signed nonce, records the session on the address's
// identity and issues a token.
func (a Auth) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address"   binding:"required"`
		Method    string `json:"method"    binding:"required,oneof=polkadotjs solana"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	ctx := c.Request.Context()
	nonce, err := data.GetAndDelNonce(ctx, a.rdb, req.Address)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "challenge expired"})
		return
	}
	if err := verifySignature(req.Method, req.Address, req.Signature, nonce); err != nil {
		log.Printf("webserver: signature check for %s failed: %v", req.Address, err)
		c.JSON(http.StatusUnauthorized, gin.H{"err": "bad signature"})
		return
	}

	var patch identity.Patch
	if a.oracle != nil {
		if bal, err := a.oracle.TokenBalance(ctx, req.Address); err == nil {
			patch.Balance = &bal
		}
	}
	rec, err := a.identities.Upsert(ctx, req.Address, patch, "")
	if err != nil {
		writeErr(c, err)
		return
	}
	if rec.IsBanned() {
		c.JSON(http.StatusForbidden, gin.H{"err": "address is banned"})
		return
	}

	token, err := issueJWT(req.Address, a.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "address": rec})
}
