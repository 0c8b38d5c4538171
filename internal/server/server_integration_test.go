package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/auth"
	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/catalog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"github.com/MarcoPoloResearchLab/bookworm/internal/comments"
	"github.com/MarcoPoloResearchLab/bookworm/internal/database"
	"github.com/MarcoPoloResearchLab/bookworm/internal/forum"
	"github.com/MarcoPoloResearchLab/bookworm/internal/metrics"
	"github.com/MarcoPoloResearchLab/bookworm/internal/readinglog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
	"github.com/MarcoPoloResearchLab/bookworm/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testVolume = `{
  "id": "vol-1",
  "volumeInfo": {
    "title": "Middlemarch",
    "authors": ["George Eliot"],
    "categories": ["Fiction"],
    "description": "A study of provincial life.",
    "pageCount": 880,
    "imageLinks": {"thumbnail": "http://covers/middlemarch.jpg"},
    "language": "en"
  }
}`

type apiHarness struct {
	t          *testing.T
	handler    http.Handler
	volumeHits *int32
}

func newAPIHarness(t *testing.T) apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	volumeHits := new(int32)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/volumes/vol-1":
			atomic.AddInt32(volumeHits, 1)
			_, _ = w.Write([]byte(testVolume))
		case "/volumes":
			_, _ = w.Write([]byte(`{"items":[` + testVolume + `]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bookworm.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	validate := validation.New()
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        "bookworm-auth",
		Audience:      "bookworm-api",
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Tokens: tokens, CookieName: "bookworm_session"})
	require.NoError(t, err)

	bookCatalog := catalog.NewClient(catalog.Config{BaseURL: upstream.URL + "/volumes", RequestsPerSecond: 100})
	usersService, err := users.NewService(users.ServiceConfig{
		Database:  db,
		Hasher:    auth.NewBcryptHasher(bcrypt.MinCost),
		Validator: validate,
	})
	require.NoError(t, err)
	booksService, err := books.NewService(books.ServiceConfig{Database: db, Catalog: bookCatalog})
	require.NoError(t, err)
	readingLogService, err := readinglog.NewService(readinglog.ServiceConfig{Database: db})
	require.NoError(t, err)
	commentsService, err := comments.NewService(comments.ServiceConfig{Database: db})
	require.NoError(t, err)
	clubsService, err := clubs.NewService(clubs.ServiceConfig{Database: db})
	require.NoError(t, err)
	forumService, err := forum.NewService(forum.ServiceConfig{Database: db, Access: clubsService})
	require.NoError(t, err)

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:   tokens,
		Validator:  sessions,
		Users:      usersService,
		Books:      booksService,
		ReadingLog: readingLogService,
		Comments:   commentsService,
		Clubs:      clubsService,
		Forum:      forumService,
		Catalog:    bookCatalog,
		Metrics:    metrics.New(),
		Validate:   validate,
	})
	require.NoError(t, err)
	return apiHarness{t: t, handler: handler, volumeHits: volumeHits}
}

func (h apiHarness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h apiHarness) register(username string) string {
	h.t.Helper()
	recorder := h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username":   username,
		"password":   "secret-" + username,
		"email":      username + "@example.com",
		"first_name": strings.ToUpper(username[:1]) + username[1:],
		"last_name":  "Reader",
	})
	require.Equal(h.t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var session struct {
		Token string `json:"token"`
	}
	decode(h.t, recorder, &session)
	require.NotEmpty(h.t, session.Token)
	return session.Token
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target), recorder.Body.String())
}

func TestAccountLifecycle(t *testing.T) {
	api := newAPIHarness(t)
	token := api.register("alice")

	duplicate := api.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "password": "another", "email": "other@example.com",
		"first_name": "A", "last_name": "B",
	})
	require.Equal(t, http.StatusConflict, duplicate.Code)

	wrong := api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)

	login := api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "secret-alice"})
	require.Equal(t, http.StatusOK, login.Code)
	require.NotEmpty(t, login.Result().Cookies())

	updated := api.do(http.MethodPatch, "/user", token, map[string]string{"location": "Leeds"})
	require.Equal(t, http.StatusOK, updated.Code)
	var profile struct {
		Username string  `json:"username"`
		Location *string `json:"location"`
	}
	decode(t, updated, &profile)
	require.Equal(t, "alice", profile.Username)
	require.NotNil(t, profile.Location)
	require.Equal(t, "Leeds", *profile.Location)

	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/user", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/user", "forged", nil).Code)
}

func TestDenAndCommentsFlow(t *testing.T) {
	api := newAPIHarness(t)
	token := api.register("alice")

	search := api.do(http.MethodGet, "/search?q=middlemarch", "", nil)
	require.Equal(t, http.StatusOK, search.Code)
	require.Contains(t, search.Body.String(), "Middlemarch")

	added := api.do(http.MethodPost, "/den/books", token, map[string]string{"book_id": "vol-1"})
	require.Equal(t, http.StatusCreated, added.Code, added.Body.String())
	again := api.do(http.MethodPost, "/den/books", token, map[string]string{"book_id": "vol-1"})
	require.Equal(t, http.StatusConflict, again.Code)

	missing := api.do(http.MethodPost, "/den/books", token, map[string]string{"book_id": "unknown"})
	require.Equal(t, http.StatusNotFound, missing.Code)

	patched := api.do(http.MethodPatch, "/den/books/vol-1", token, map[string]any{
		"status":       1,
		"current_page": 120,
		"start_date":   "2026-01-02",
	})
	require.Equal(t, http.StatusOK, patched.Code, patched.Body.String())
	var entry entryPayload
	decode(t, patched, &entry)
	require.Equal(t, 1, entry.Status)
	require.Equal(t, "Middlemarch", entry.Book.Title)
	require.NotNil(t, entry.StartDate)
	require.Equal(t, "2026-01-02", *entry.StartDate)

	invalid := api.do(http.MethodPatch, "/den/books/vol-1", token, map[string]any{"status": 9})
	require.Equal(t, http.StatusBadRequest, invalid.Code)

	den := api.do(http.MethodGet, "/den", token, nil)
	require.Equal(t, http.StatusOK, den.Code)
	var list struct {
		Books []entryPayload `json:"books"`
	}
	decode(t, den, &list)
	require.Len(t, list.Books, 1)

	comment := api.do(http.MethodPut, "/books/vol-1/comment", token, map[string]any{
		"comment": "Dorothea deserved better.",
		"rating":  4.5,
		"domain":  2,
	})
	require.Equal(t, http.StatusOK, comment.Code, comment.Body.String())
	badRating := api.do(http.MethodPut, "/books/vol-1/comment", token, map[string]any{"rating": 7})
	require.Equal(t, http.StatusBadRequest, badRating.Code)

	public := api.do(http.MethodGet, "/books/vol-1/comments", "", nil)
	require.Equal(t, http.StatusOK, public.Code)
	var publicList struct {
		Comments []commentPayload `json:"comments"`
	}
	decode(t, public, &publicList)
	require.Len(t, publicList.Comments, 1)
	require.Equal(t, "Alice", publicList.Comments[0].Author)
	require.Equal(t, "alice", publicList.Comments[0].Username)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/den/books/vol-1", token, nil).Code)
	require.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/den/books/vol-1", token, nil).Code)
}

func TestClubFlow(t *testing.T) {
	api := newAPIHarness(t)
	alice := api.register("alice")
	bob := api.register("bob")

	created := api.do(http.MethodPost, "/clubs", alice, map[string]string{"name": "Readers"})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var club clubPayload
	decode(t, created, &club)
	clubPath := fmt.Sprintf("/clubs/%d", club.ID)

	require.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/clubs", bob, map[string]string{"name": "Readers"}).Code)

	invited := api.do(http.MethodPost, clubPath+"/members", alice, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusCreated, invited.Code, invited.Body.String())

	require.Equal(t, http.StatusForbidden, api.do(http.MethodGet, clubPath+"/messages", bob, nil).Code)

	accepted := api.do(http.MethodPost, clubPath+"/invite", bob, map[string]string{"response": "accept"})
	require.Equal(t, http.StatusOK, accepted.Code, accepted.Body.String())
	var membership membershipPayload
	decode(t, accepted, &membership)
	require.Equal(t, "member", membership.Role)

	posted := api.do(http.MethodPost, clubPath+"/messages", bob, map[string]string{"message": "  Chapter one!  "})
	require.Equal(t, http.StatusCreated, posted.Code, posted.Body.String())
	var message messagePayload
	decode(t, posted, &message)
	require.Equal(t, "Chapter one!", message.Message)

	edit := api.do(http.MethodPatch, fmt.Sprintf("%s/messages/%d", clubPath, message.ID), alice, map[string]string{"message": "hijack"})
	require.Equal(t, http.StatusForbidden, edit.Code)

	listed := api.do(http.MethodGet, clubPath+"/messages?limit=5", alice, nil)
	require.Equal(t, http.StatusOK, listed.Code)
	var page struct {
		Messages []messagePayload `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	decode(t, listed, &page)
	require.Len(t, page.Messages, 1)
	require.False(t, page.HasMore)
	require.Equal(t, "Bob Reader", page.Messages[0].Author)

	carol := api.register("carol")
	outsider := api.do(http.MethodPost, "/books/vol-1/clubs", carol, map[string]int64{"club_id": club.ID})
	require.Equal(t, http.StatusForbidden, outsider.Code)
	require.Equal(t, int32(0), atomic.LoadInt32(api.volumeHits))

	addBook := api.do(http.MethodPost, "/books/vol-1/clubs", bob, map[string]int64{"club_id": club.ID})
	require.Equal(t, http.StatusOK, addBook.Code, addBook.Body.String())

	clubBooks := api.do(http.MethodGet, clubPath+"/books", alice, nil)
	require.Equal(t, http.StatusOK, clubBooks.Code)
	require.Contains(t, clubBooks.Body.String(), "Middlemarch")

	bookClubs := api.do(http.MethodGet, "/books/vol-1/clubs", alice, nil)
	require.Equal(t, http.StatusOK, bookClubs.Code)
	var view struct {
		Included []clubPayload `json:"included"`
		Choices  []clubPayload `json:"choices"`
	}
	decode(t, bookClubs, &view)
	require.Len(t, view.Included, 1)
	require.Empty(t, view.Choices)

	require.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, clubPath, bob, nil).Code)
	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, clubPath, alice, nil).Code)
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, clubPath, alice, nil).Code)
}

func TestMetricsEndpointIsServed(t *testing.T) {
	api := newAPIHarness(t)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "", nil).Code)

	recorder := api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "bookworm_http_requests_total")
}
