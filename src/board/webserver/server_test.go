package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/govboard/src/board/assets"
	"github.com/stake-plus/govboard/src/board/comments"
	"github.com/stake-plus/govboard/src/board/config"
	"github.com/stake-plus/govboard/src/board/data"
	"github.com/stake-plus/govboard/src/board/identity"
	"github.com/stake-plus/govboard/src/board/policy"
	"github.com/stake-plus/govboard/src/board/posts"
	"github.com/stake-plus/govboard/src/board/types"
	"github.com/stake-plus/govboard/src/board/votes"
)

const (
	author   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	stranger = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	admin    = "5FLSigC9HGRKVhB9FiEo4Y3koPsNmBmLJbpXg2mp1hXcS59Y"
)

func init() { gin.SetMode(gin.TestMode) }

type server struct {
	engine   *gin.Engine
	secret   []byte
	now      time.Time
	registry *identity.Registry
	disk     *assets.Disk
}

func newServer(t *testing.T) *server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	disk, err := assets.NewDisk(t.TempDir())
	require.NoError(t, err)

	s := &server{secret: []byte("test-secret"), now: time.Unix(1_700_000_000, 0), disk: disk}
	clock := func() time.Time { return s.now }

	store := data.NewRedisStore(rdb, "test")
	admins := policy.NewAdmins([]string{admin})
	s.registry = identity.NewRegistry(store, disk, clock)
	commentRepo := comments.NewRepository(store, s.registry, clock)
	ledger := votes.NewLedger(store, s.registry, clock)
	postRepo := posts.NewRepository(store, posts.Deps{
		Identities: s.registry,
		Comments:   commentRepo,
		Votes:      ledger,
		Assets:     disk,
		Admins:     admins,
		Now:        clock,
	})

	cfg := config.Config{JWTSecret: string(s.secret), CORSOrigins: []string{"http://localhost:3000"}}
	s.engine = New(cfg, rdb, Services{
		Posts:      postRepo,
		Comments:   commentRepo,
		Votes:      ledger,
		Identities: s.registry,
		Assets:     disk,
		Admins:     admins,
	})
	return s
}

func (s *server) token(t *testing.T, addr string) string {
	t.Helper()
	tok, err := issueJWT(addr, s.secret)
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path string, body any, addr string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if addr != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, addr))
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *server) createPost(t *testing.T, addr string, body gin.H) types.Post {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/posts", body, addr)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[types.Post](t, w)
}

func TestAuth_ChallengeVerify(t *testing.T) {
	s := newServer(t)
	signer := newSr25519Signer(t)

	w := s.do(t, http.MethodPost, "/v1/auth/challenge", gin.H{"address": signer.addr, "method": "polkadotjs"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	nonce := decode[map[string]string](t, w)["nonce"]
	require.NotEmpty(t, nonce)

	sig := signer.sign(t, "<Bytes>"+nonce+"</Bytes>")
	verify := gin.H{"address": signer.addr, "method": "polkadotjs", "signature": sig}
	w = s.do(t, http.MethodPost, "/v1/auth/verify", verify, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		Token   string         `json:"token"`
		Address types.Identity `json:"address"`
	}](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, signer.addr, resp.Address.Address)
	assert.Equal(t, s.now.Unix(), resp.Address.RegisteredAt)

	w = s.do(t, http.MethodPost, "/v1/auth/verify", verify, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "nonce is single use")
}

func TestAuth_BadSignature(t *testing.T) {
	s := newServer(t)
	signer := newSr25519Signer(t)

	w := s.do(t, http.MethodPost, "/v1/auth/challenge", gin.H{"address": signer.addr, "method": "polkadotjs"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/verify",
		gin.H{"address": signer.addr, "method": "polkadotjs", "signature": signer.sign(t, "forged")}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, found, err := s.registry.Get(context.Background(), signer.addr)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAuth_BannedAddress(t *testing.T) {
	s := newServer(t)
	signer := newSr25519Signer(t)
	banned := true
	_, err := s.registry.Upsert(context.Background(), signer.addr, identity.Patch{Banned: &banned}, "")
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/v1/auth/challenge", gin.H{"address": signer.addr, "method": "polkadotjs"}, "")
	nonce := decode[map[string]string](t, w)["nonce"]

	w = s.do(t, http.MethodPost, "/v1/auth/verify",
		gin.H{"address": signer.addr, "method": "polkadotjs", "signature": signer.sign(t, nonce)}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuth_UnknownMethod(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/v1/auth/challenge", gin.H{"address": author, "method": "metamask"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecuredRoutes_RequireToken(t *testing.T) {
	s := newServer(t)
	body := gin.H{"type": "discussion", "title": "t", "duration": 1}

	w := s.do(t, http.MethodPost, "/v1/posts", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := issueJWT(author, []byte("other-secret"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPosts_Lifecycle(t *testing.T) {
	s := newServer(t)

	p := s.createPost(t, author, gin.H{"type": "proposal", "title": "Raise the cap", "description": "<p>why</p>", "duration": 3})
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, []string{"For", "Against"}, p.Options)
	assert.Equal(t, author, p.WalletAddress)
	assert.Equal(t, s.now.Unix()+3*24*3600, p.ExpiresAt)

	w := s.do(t, http.MethodGet, "/v1/posts", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[posts.Page](t, w)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	require.Len(t, page.Posts, 1)

	w = s.do(t, http.MethodGet, "/v1/posts/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	det := decode[posts.Detail](t, w)
	assert.Equal(t, "Raise the cap", det.Post.Title)
	assert.False(t, det.Closed)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/posts/2", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/posts/abc", nil, "").Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/v1/posts/1", nil, stranger).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/posts/1", nil, author).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/posts/1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/v1/posts/1", nil, author).Code)
}

func TestPosts_AdminDeletes(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "issue", "title": "spam", "duration": 1})
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/posts/1", nil, admin).Code)
}

func TestPosts_CreateValidation(t *testing.T) {
	s := newServer(t)

	cases := []struct {
		name string
		body gin.H
	}{
		{"unknown type", gin.H{"type": "poll", "title": "t", "duration": 1}},
		{"missing duration", gin.H{"type": "discussion", "title": "t"}},
		{"missing title", gin.H{"type": "discussion", "duration": 1}},
		{"markup only title", gin.H{"type": "discussion", "title": "<b></b>", "duration": 1}},
		{"seed votes mismatch", gin.H{"type": "proposal", "title": "t", "duration": 1, "votes": []int{1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/posts", tc.body, author)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestPosts_ListFilters(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "proposal", "title": "Treasury spend", "duration": 1})
	s.createPost(t, stranger, gin.H{"type": "issue", "title": "Broken link", "duration": 1})
	s.createPost(t, author, gin.H{"type": "discussion", "title": "Roadmap", "duration": 1, "options": []string{"Q1", "Q2"}})

	page := decode[posts.Page](t, s.do(t, http.MethodGet, "/v1/posts?type=issue", nil, ""))
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "Broken link", page.Posts[0].Title)

	page = decode[posts.Page](t, s.do(t, http.MethodGet, "/v1/posts?address="+author, nil, ""))
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, "Roadmap", page.Posts[0].Title, "newest first")

	page = decode[posts.Page](t, s.do(t, http.MethodGet, "/v1/posts?query=treasury", nil, ""))
	assert.Equal(t, 1, page.TotalCount)

	page = decode[posts.Page](t, s.do(t, http.MethodGet, "/v1/posts?page=2&limit=2", nil, ""))
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "Roadmap", page.Posts[0].Title, "pages are cut in creation order")
}

func pngUpload(t *testing.T, fields map[string]string, fileField, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	require.NoError(t, err)
	require.NoError(t, png.Encode(fw, image.NewRGBA(image.Rect(0, 0, 640, 480))))
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestPosts_CreateWithImage(t *testing.T) {
	s := newServer(t)
	body, ctype := pngUpload(t, map[string]string{"type": "discussion", "title": "With art", "duration": "2"}, "image", "art.png")

	req := httptest.NewRequest(http.MethodPost, "/v1/posts", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+s.token(t, author))
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	p := decode[types.Post](t, w)
	require.NotEmpty(t, p.ImageURL)
	assert.Equal(t, ".png", filepath.Ext(p.ImageURL))
	assert.FileExists(t, filepath.Join(s.disk.Root(), filepath.FromSlash(assets.PostImagePath(p.ImageURL))))
	assert.FileExists(t, filepath.Join(s.disk.Root(), filepath.FromSlash(assets.PostThumbPath(p.ImageURL))))

	w = s.do(t, http.MethodGet, "/images/"+assets.PostImagePath(p.ImageURL), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, fmt.Sprintf("/v1/posts/%d", p.ID), nil, author).Code)
	_, err := os.Stat(filepath.Join(s.disk.Root(), filepath.FromSlash(assets.PostImagePath(p.ImageURL))))
	assert.True(t, os.IsNotExist(err))
}

func TestComments_Thread(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "discussion", "title": "Roadmap", "duration": 1})

	w := s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "comment", "content": "first!"}, stranger)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	top := decode[types.Comment](t, w)

	w = s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "reply", "content": "agreed", "parentCommentId": top.ID}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "reply", "content": "legacy field", "commentId": top.ID}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "reply", "content": "orphan", "parentCommentId": 99}, author)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "comment", "content": "x"}, author)
	assert.Equal(t, http.StatusBadRequest, w.Code, "too short")

	w = s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 42, "type": "comment", "content": "hello"}, author)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/posts/1/comments", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]types.Comment](t, w)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Replies, 2)
}

func TestComments_LockedDuringElection(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "election", "title": "Council", "duration": 1, "options": []string{"A", "B"}})

	w := s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "comment", "content": "vote A"}, stranger)
	assert.Equal(t, http.StatusConflict, w.Code)

	s.now = s.now.Add(25 * time.Hour)
	w = s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "comment", "content": "A won"}, stranger)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestVotes_CastAndSummary(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "proposal", "title": "Raise", "duration": 1})

	w := s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1, "option": 0}, stranger)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []int{1, 0}, decode[map[string][]int](t, w)["counts"])

	w = s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1, "option": 1}, stranger)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []int{0, 1}, decode[map[string][]int](t, w)["counts"], "a second ballot replaces the first")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1, "option": 5}, stranger).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1}, stranger).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 9, "option": 0}, stranger).Code)

	w = s.do(t, http.MethodGet, "/v1/votes/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[struct {
		Options []string `json:"options"`
		Counts  []int    `json:"counts"`
		Closed  bool     `json:"closed"`
	}](t, w)
	assert.Equal(t, []string{"For", "Against"}, summary.Options)
	assert.Equal(t, []int{0, 1}, summary.Counts)
	assert.False(t, summary.Closed)

	s.now = s.now.Add(24*time.Hour + time.Second)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1, "option": 0}, author).Code)
	summary = decode[struct {
		Options []string `json:"options"`
		Counts  []int    `json:"counts"`
		Closed  bool     `json:"closed"`
	}](t, s.do(t, http.MethodGet, "/v1/votes/1", nil, ""))
	assert.True(t, summary.Closed)
}

func TestVotes_SummaryWithoutBallots(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "issue", "title": "Bug", "duration": 1})

	w := s.do(t, http.MethodGet, "/v1/votes/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{0, 0}, decode[map[string][]int](t, w)["counts"])
}

func TestAdmin_Ban(t *testing.T) {
	s := newServer(t)
	s.createPost(t, author, gin.H{"type": "proposal", "title": "Raise", "duration": 1})

	ban := gin.H{"banned": true}
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, "/v1/admin/addresses/"+stranger+"/ban", ban, author).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPut, "/v1/admin/addresses/"+stranger+"/ban", ban, "").Code)

	w := s.do(t, http.MethodPut, "/v1/admin/addresses/"+stranger+"/ban", ban, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[types.Identity](t, w).IsBanned())

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1, "option": 0}, stranger).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodPost, "/v1/posts", gin.H{"type": "issue", "title": "t", "duration": 1}, stranger).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodPost, "/v1/comments", gin.H{"postId": 1, "type": "comment", "content": "let me in"}, stranger).Code)

	w = s.do(t, http.MethodPut, "/v1/admin/addresses/"+stranger+"/ban", gin.H{"banned": false}, admin)
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[types.Identity](t, w)
	assert.Nil(t, rec.Banned, "unbanning clears the flag")
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/votes", gin.H{"postId": 1, "option": 0}, stranger).Code)
}

func TestAddresses_GetAndUpdate(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/addresses/"+author, nil, "").Code)

	w := s.do(t, http.MethodPut, "/v1/addresses/me", gin.H{"displayName": "  Alice "}, author)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alice", decode[types.Identity](t, w).DisplayName)

	w = s.do(t, http.MethodGet, "/v1/addresses/"+author, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[types.Identity](t, w)
	assert.Equal(t, author, rec.Address)
	assert.Equal(t, "Alice", rec.DisplayName)
}

func TestAddresses_AvatarReplacesPrevious(t *testing.T) {
	s := newServer(t)

	upload := func() types.Identity {
		body, ctype := pngUpload(t, map[string]string{"displayName": "Alice"}, "avatar", "me.png")
		req := httptest.NewRequest(http.MethodPut, "/v1/addresses/me", body)
		req.Header.Set("Content-Type", ctype)
		req.Header.Set("Authorization", "Bearer "+s.token(t, author))
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[types.Identity](t, w)
	}

	first := upload()
	require.NotEmpty(t, first.AvatarURL)
	firstPath := filepath.Join(s.disk.Root(), filepath.FromSlash(assets.AvatarPath(first.AvatarURL)))
	assert.FileExists(t, firstPath)

	second := upload()
	assert.NotEqual(t, first.AvatarURL, second.AvatarURL)
	assert.NoFileExists(t, firstPath)
	assert.FileExists(t, filepath.Join(s.disk.Root(), filepath.FromSlash(assets.AvatarPath(second.AvatarURL))))
}
