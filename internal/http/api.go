package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gunnforge/internal/auth"
	"gunnforge/internal/domain"
	"gunnforge/internal/gateway"
	"gunnforge/internal/repository"
	"gunnforge/internal/service"
)

const userKey = "gunnforge.user"

// Handler wires HTTP routes to domain services.
type Handler struct {
	users          service.UserService
	files          repository.MemberFileRepository
	gateway        *gateway.Gateway
	auth           *auth.Authenticator
	cookies        *auth.CookieManager
	logger         logrus.FieldLogger
	allowedOrigins []string
}

// Options carries the collaborators of Handler.
type Options struct {
	Users          service.UserService
	Files          repository.MemberFileRepository
	Gateway        *gateway.Gateway
	Auth           *auth.Authenticator
	Cookies        *auth.CookieManager
	Logger         logrus.FieldLogger
	AllowedOrigins []string
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		users:          opts.Users,
		files:          opts.Files,
		gateway:        opts.Gateway,
		auth:           opts.Auth,
		cookies:        opts.Cookies,
		logger:         logger,
		allowedOrigins: opts.AllowedOrigins,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger))
	router.Use(corsMiddleware(h.allowedOrigins))
	router.Use(h.identify())

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.login)
		api.POST("/auth/logout", h.logout)
		api.GET("/auth/me", requireUser(), h.me)
		api.GET("/members/data", requireUser(), h.membersData)
		api.GET("/files/download", h.download)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

// corsMiddleware echoes back origins from the allow-list. With an empty
// list only same-origin browsers can call the API.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := origins[origin]; !ok || origin == "" {
			c.Next()
			return
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		c.Writer.Header().Add("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// identify stores the session identity, if any, on the context.
func (h *Handler) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := h.cookies.CurrentUser(c.Request); user != nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.UserPayload {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.UserPayload)
	return user
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	User    *domain.UserPayload `json:"user,omitempty"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, loginResponse{Message: "Username and password are required"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, loginResponse{Message: "Invalid credentials"})
			return
		}
		requestLog(c, h.logger).Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, loginResponse{Message: "Internal server error"})
		return
	}

	payload := user.Payload()
	token, err := h.auth.IssueToken(payload)
	if err != nil {
		requestLog(c, h.logger).Errorf("issue token: %v", err)
		c.JSON(http.StatusInternalServerError, loginResponse{Message: "Internal server error"})
		return
	}
	h.cookies.SetAuthCookie(c.Writer, token)

	requestLog(c, h.logger).WithField("user_id", payload.ID).Info("login succeeded")
	c.JSON(http.StatusOK, loginResponse{Success: true, User: &payload})
}

func (h *Handler) logout(c *gin.Context) {
	h.cookies.ClearAuthCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

type membersDataResponse struct {
	User  *domain.UserPayload `json:"user"`
	Files []domain.MemberFile `json:"files"`
}

func (h *Handler) membersData(c *gin.Context) {
	files, err := h.files.List(c.Request.Context())
	if err != nil {
		requestLog(c, h.logger).Errorf("load member files: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error loading data"})
		return
	}
	if files == nil {
		files = []domain.MemberFile{}
	}
	c.JSON(http.StatusOK, membersDataResponse{User: currentUser(c), Files: files})
}

var dispositionEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (h *Handler) download(c *gin.Context) {
	stream, err := h.gateway.Download(
		c.Request.Context(),
		currentUser(c),
		c.Query("category"),
		c.Query("filename"),
	)
	if err != nil {
		status, message := downloadError(err)
		if status == http.StatusInternalServerError {
			requestLog(c, h.logger).Errorf("file download: %v", err)
		}
		c.JSON(status, gin.H{"error": message})
		return
	}
	defer stream.Body.Close()

	c.DataFromReader(http.StatusOK, stream.Size, stream.ContentType, stream.Body, map[string]string{
		"Content-Disposition":    `attachment; filename="` + dispositionEscaper.Replace(stream.Filename) + `"`,
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "private, max-age=3600",
	})
}

func downloadError(err error) (int, string) {
	var rejected *gateway.Error
	if !errors.As(err, &rejected) {
		return http.StatusInternalServerError, "Internal server error"
	}
	switch {
	case errors.Is(err, gateway.ErrUnauthenticated):
		return http.StatusUnauthorized, rejected.Reason
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound, rejected.Reason
	default:
		return http.StatusBadRequest, rejected.Reason
	}
}
