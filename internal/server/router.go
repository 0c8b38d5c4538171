package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"github.com/MarcoPoloResearchLab/bookworm/internal/comments"
	"github.com/MarcoPoloResearchLab/bookworm/internal/forum"
	"github.com/MarcoPoloResearchLab/bookworm/internal/metrics"
	"github.com/MarcoPoloResearchLab/bookworm/internal/readinglog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
	"github.com/MarcoPoloResearchLab/bookworm/internal/validation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "bookworm_user_id"
	requestIDContextKey = "bookworm_request_id"
	requestIDHeader     = "X-Request-ID"
)

var (
	errMissingSessionIssuer    = errors.New("session issuer dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingBooksService     = errors.New("books service dependency required")
	errMissingReadingLog       = errors.New("reading log service dependency required")
	errMissingCommentsService  = errors.New("comments service dependency required")
	errMissingClubsService     = errors.New("clubs service dependency required")
	errMissingForumService     = errors.New("forum service dependency required")
	errMissingCatalog          = errors.New("book catalog dependency required")
)

// Dependencies wires the services behind the HTTP surface.
type Dependencies struct {
	Sessions       SessionIssuer
	Validator      RequestValidator
	Users          *users.Service
	Books          *books.Service
	ReadingLog     *readinglog.Service
	Comments       *comments.Service
	Clubs          *clubs.Service
	Forum          *forum.Service
	Catalog        BookCatalog
	Metrics        *metrics.Metrics
	Validate       *validation.Validator
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the bookworm API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.Validator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Books == nil {
		return nil, errMissingBooksService
	}
	if deps.ReadingLog == nil {
		return nil, errMissingReadingLog
	}
	if deps.Comments == nil {
		return nil, errMissingCommentsService
	}
	if deps.Clubs == nil {
		return nil, errMissingClubsService
	}
	if deps.Forum == nil {
		return nil, errMissingForumService
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := deps.Validate
	if validate == nil {
		validate = validation.New()
	}

	handler := &httpHandler{
		sessions:   deps.Sessions,
		validator:  deps.Validator,
		users:      deps.Users,
		books:      deps.Books,
		readingLog: deps.ReadingLog,
		comments:   deps.Comments,
		clubs:      deps.Clubs,
		forum:      deps.Forum,
		catalog:    deps.Catalog,
		metrics:    deps.Metrics,
		validate:   validate,
		logger:     logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogMiddleware(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)
	router.GET("/search", handler.handleCatalogSearch)
	router.GET("/books/:bookID", handler.handleCatalogBook)
	router.GET("/books/:bookID/comments", handler.handlePublicComments)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/user", handler.handleCurrentUser)
	protected.PATCH("/user", handler.handleUpdateUser)
	protected.PUT("/user/password", handler.handleChangePassword)
	protected.GET("/user/search", handler.handleUserSearch)

	protected.PUT("/books/:bookID/comment", handler.handleUpsertComment)
	protected.GET("/books/:bookID/comment", handler.handleOwnComment)
	protected.GET("/books/:bookID/clubs", handler.handleBookClubs)
	protected.POST("/books/:bookID/clubs", handler.handleAddBookToClub)
	protected.DELETE("/books/:bookID/clubs/:clubID", handler.handleRemoveBookFromClub)

	protected.GET("/den", handler.handleDen)
	protected.POST("/den/books", handler.handleAddToDen)
	protected.GET("/den/books/:bookID", handler.handleDenEntry)
	protected.PATCH("/den/books/:bookID", handler.handleUpdateDenEntry)
	protected.DELETE("/den/books/:bookID", handler.handleRemoveFromDen)

	protected.GET("/clubs", handler.handleListClubs)
	protected.POST("/clubs", handler.handleCreateClub)
	protected.GET("/clubs/:clubID", handler.handleClubDetails)
	protected.PATCH("/clubs/:clubID", handler.handleUpdateClub)
	protected.DELETE("/clubs/:clubID", handler.handleDeleteClub)
	protected.GET("/clubs/:clubID/books", handler.handleClubBooks)
	protected.POST("/clubs/:clubID/members", handler.handleInviteMember)
	protected.DELETE("/clubs/:clubID/members/:username", handler.handleRemoveMember)
	protected.POST("/clubs/:clubID/invite", handler.handleInviteResponse)
	protected.GET("/clubs/:clubID/messages", handler.handleListMessages)
	protected.POST("/clubs/:clubID/messages", handler.handleAddMessage)
	protected.PATCH("/clubs/:clubID/messages/:messageID", handler.handleUpdateMessage)
	protected.DELETE("/clubs/:clubID/messages/:messageID", handler.handleDeleteMessage)

	return router, nil
}

type httpHandler struct {
	sessions   SessionIssuer
	validator  RequestValidator
	users      *users.Service
	books      *books.Service
	readingLog *readinglog.Service
	comments   *comments.Service
	clubs      *clubs.Service
	forum      *forum.Service
	catalog    BookCatalog
	metrics    *metrics.Metrics
	validate   *validation.Validator
	logger     *zap.Logger
}

// corsMiddleware allows credentialed requests from the listed origins only. Without
// a list the API stays same-origin and no CORS headers are emitted.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
