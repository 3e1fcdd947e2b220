package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/config"
	"github.com/ayush/scrollable/internal/events"
	"github.com/ayush/scrollable/internal/httpx"
	"github.com/ayush/scrollable/internal/models"
	"github.com/ayush/scrollable/internal/store"
)

type server struct {
	t      *testing.T
	srv    *httptest.Server
	events *events.Recorder
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		APIPrefix:      "/api",
		ClientURL:      "http://localhost:3000",
		JWTSecret:      "router-test-secret",
		JWTExpire:      time.Hour,
		MediaPublicURL: "http://cdn.local",
		MediaFolder:    "scrollable",
		MaxUploadBytes: 1 << 20,
		UploadTimeout:  time.Second,
	}
	rec := &events.Recorder{}
	h := NewRouter(cfg, log, Backends{
		Store:   store.NewMemoryStore(),
		Files:   store.NewMemoryFileStore(),
		Bucket:  "media",
		Revoker: auth.NoopRevoker{},
		Events:  rec,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &server{t: t, srv: srv, events: rec}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *server) call(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *server) register(username string) models.AuthResponse {
	s.t.Helper()
	code, env := s.call(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret1",
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)
	var out models.AuthResponse
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out
}

func decodePost(t *testing.T, env envelope) models.PostView {
	t.Helper()
	var out struct {
		Post models.PostView `json:"post"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.Post
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/health", "/api/health"} {
		resp, err := http.Get(s.srv.URL + path)
		require.NoError(t, err)
		var h Health
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "server is running", h.Message)
		assert.False(t, h.Timestamp.IsZero())
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	code, env := s.call(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice")
	assert.NotEmpty(t, alice.Token)

	code, env := s.call(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "User with this email or username already exists", env.Message)

	code, env = s.call(http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "alice@example.com", Password: "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password", env.Message)

	code, env = s.call(http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Please provide email and password", env.Message)

	code, env = s.call(http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, code)
	var login models.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))

	code, env = s.call(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var me struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "alice", me.User["username"])
	assert.NotContains(t, me.User, "password")
	assert.NotContains(t, me.User, "PasswordHash")

	code, env = s.call(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "No token provided", env.Message)

	code, _ = s.call(http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestFeedScenario(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice")
	bob := s.register("bob")

	code, env := s.call(http.MethodPost, "/api/posts", "", map[string]string{
		"mediaUrl": "https://cdn.local/a.jpg", "mediaType": "image",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	var ids []string
	for i := 0; i < 15; i++ {
		code, env = s.call(http.MethodPost, "/api/posts", alice.Token, map[string]string{
			"caption":   fmt.Sprintf("post %d", i),
			"mediaUrl":  "https://cdn.local/a.jpg",
			"mediaType": "image",
		})
		require.Equal(t, http.StatusCreated, code, env.Message)
		ids = append(ids, decodePost(t, env).ID)
	}

	code, env = s.call(http.MethodGet, "/api/posts?page=1&limit=10", "", nil)
	require.Equal(t, http.StatusOK, code)
	var page models.FeedPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Posts, 10)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 10, Total: 15, HasMore: true}, page.Pagination)

	code, env = s.call(http.MethodGet, "/api/posts?page=2&limit=10", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Posts, 5)
	assert.False(t, page.Pagination.HasMore)

	target := ids[0]
	code, env = s.call(http.MethodPut, "/api/posts/"+target+"/like", bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodePost(t, env).LikedByMe)

	code, env = s.call(http.MethodGet, "/api/posts/"+target, bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodePost(t, env).LikedByMe)

	code, env = s.call(http.MethodGet, "/api/posts/"+target, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodePost(t, env).LikedByMe, "anonymous viewers never like")

	code, env = s.call(http.MethodGet, "/api/posts/"+target, "Bearer-garbage", nil)
	assert.Equal(t, http.StatusOK, code, "bad tokens degrade to anonymous on optional routes")

	code, env = s.call(http.MethodPost, "/api/posts/"+target+"/comment", bob.Token, map[string]string{"text": "  nice  "})
	require.Equal(t, http.StatusOK, code)
	post := decodePost(t, env)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "nice", post.Comments[0].Text)
	assert.Equal(t, "bob", post.Comments[0].User.Username)

	code, env = s.call(http.MethodDelete, "/api/posts/"+target, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Not authorized to delete this post", env.Message)

	code, env = s.call(http.MethodDelete, "/api/posts/"+target, alice.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Post deleted successfully", env.Message)

	code, env = s.call(http.MethodGet, "/api/posts/"+target, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Post not found", env.Message)

	assert.Contains(t, s.events.Subjects(), events.PostDeleted)
}

func TestUploadRequiresAuthAndStores(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "pic.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	send := func(token string) (int, envelope) {
		req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/api/upload", bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var env envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		return resp.StatusCode, env
	}

	code, _ := send("")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := send(alice.Token)
	require.Equal(t, http.StatusOK, code, env.Message)
	var up models.Upload
	require.NoError(t, json.Unmarshal(env.Data, &up))
	assert.Equal(t, models.MediaImage, up.Type)
	assert.Equal(t, "http://cdn.local/media/"+up.PublicID, up.URL)
}

func TestOversizedJSONBody(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice")
	code, env := s.call(http.MethodPost, "/api/posts", alice.Token, map[string]string{
		"mediaUrl": "https://cdn.local/a.jpg", "mediaType": "image",
	})
	require.Equal(t, http.StatusCreated, code)
	id := decodePost(t, env).ID

	huge := strings.Repeat("x", httpx.MaxJSONBody)
	code, env = s.call(http.MethodPost, "/api/posts/"+id+"/comment", alice.Token, map[string]string{"text": huge})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Request body too large", env.Message)

	code, env = s.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": huge, "password": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Request body too large", env.Message)
}
