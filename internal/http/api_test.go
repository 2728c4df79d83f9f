package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/require"

	"gunnforge/internal/auth"
	"gunnforge/internal/domain"
	"gunnforge/internal/gateway"
	"gunnforge/internal/repository/jsonfile"
	"gunnforge/internal/service"
	"gunnforge/internal/storage"
)

type testServer struct {
	handler http.Handler
	auth    *auth.Authenticator
	dir     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	dir := t.TempDir()

	users := jsonfile.NewUserStore(filepath.Join(dir, "users.json"))
	require.NoError(t, users.Init(ctx))
	userSvc := service.NewUserService(users)
	_, err := userSvc.Add(ctx, "john", "SecurePassword123!")
	require.NoError(t, err)

	manifest := jsonfile.NewManifestStore(filepath.Join(dir, "member-files.json"))
	require.NoError(t, manifest.ReplaceAll(ctx, []domain.MemberFile{
		{ID: "1", Name: "Anvil", Description: "Reference photo", Category: "images", Filename: "a.png", UploadDate: "2024-03-02", Size: "9 B"},
		{ID: "2", Name: "Handbook", Category: "documents", Filename: "handbook.pdf", Size: "8 B"},
	}))

	root := filepath.Join(dir, "member-files")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "a.png"), []byte("png-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "b.png"), []byte("unlisted"), 0o644))
	local, err := storage.NewLocalService(root)
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator("test-secret", auth.DefaultTokenTTL)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := gin.New()
	router.Use(gin.Recovery())
	NewHandler(Options{
		Users:          userSvc,
		Files:          manifest,
		Gateway:        gateway.New(manifest, local),
		Auth:           authenticator,
		Cookies:        auth.NewCookieManager(authenticator, "", true),
		Logger:         logger,
		AllowedOrigins: []string{"https://gunnforge.example"},
	}).RegisterRoutes(router)

	return &testServer{handler: router, auth: authenticator, dir: dir}
}

func (s *testServer) token(t *testing.T) string {
	t.Helper()
	tok, err := s.auth.IssueToken(domain.UserPayload{ID: "1", Username: "john"})
	require.NoError(t, err)
	return tok
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Post("/api/auth/login").
		JSON(`{"username":"john","password":"SecurePassword123!"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.success", true)).
		Assert(jsonpath.Equal("$.user.id", "1")).
		Assert(jsonpath.Equal("$.user.username", "john")).
		Assert(jsonpath.NotPresent("$.user.passwordHash")).
		Assert(func(res *http.Response, _ *http.Request) error {
			for _, c := range res.Cookies() {
				if c.Name != auth.DefaultCookieName {
					continue
				}
				if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode || c.MaxAge != 7*24*60*60 {
					return fmt.Errorf("unexpected cookie attributes: %+v", c)
				}
				return nil
			}
			return fmt.Errorf("session cookie not set")
		}).
		End()
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Post("/api/auth/login").
		JSON(`{"username":"john","password":"wrong"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.success", false)).
		Assert(jsonpath.Equal("$.message", "Invalid credentials")).
		CookieNotPresent(auth.DefaultCookieName).
		End()

	apitest.New().
		Handler(s.handler).
		Post("/api/auth/login").
		JSON(`{"username":"nobody","password":"SecurePassword123!"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.message", "Invalid credentials")).
		End()

	for _, body := range []string{`{"username":"john"}`, `{"username":"","password":"x"}`, `not json`} {
		apitest.New().
			Handler(s.handler).
			Post("/api/auth/login").
			Body(body).
			Header("Content-Type", "application/json").
			Expect(t).
			Status(http.StatusBadRequest).
			Assert(jsonpath.Equal("$.success", false)).
			Assert(jsonpath.Equal("$.message", "Username and password are required")).
			End()
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.Remove(filepath.Join(s.dir, "users.json")))
	s = reopen(t, s)

	apitest.New().
		Handler(s.handler).
		Post("/api/auth/login").
		JSON(`{"username":"john","password":"SecurePassword123!"}`).
		Expect(t).
		Status(http.StatusInternalServerError).
		Assert(jsonpath.Equal("$.message", "Internal server error")).
		End()
}

// reopen builds a handler over fresh stores so removed documents are noticed.
func reopen(t *testing.T, s *testServer) *testServer {
	t.Helper()
	router := gin.New()
	cookies := auth.NewCookieManager(s.auth, "", true)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	manifest := jsonfile.NewManifestStore(filepath.Join(s.dir, "member-files.json"))
	NewHandler(Options{
		Users:   service.NewUserService(jsonfile.NewUserStore(filepath.Join(s.dir, "users.json"))),
		Files:   manifest,
		Gateway: gateway.New(manifest, nil),
		Auth:    s.auth,
		Cookies: cookies,
		Logger:  logger,
	}).RegisterRoutes(router)
	return &testServer{handler: router, auth: s.auth, dir: s.dir}
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Post("/api/auth/logout").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.success", true)).
		Assert(func(res *http.Response, _ *http.Request) error {
			for _, c := range res.Cookies() {
				if c.Name == auth.DefaultCookieName && c.Value == "" && c.MaxAge < 0 {
					return nil
				}
			}
			return fmt.Errorf("session cookie not cleared")
		}).
		End()
}

func TestDownload(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Get("/api/files/download").
		Query("category", "images").
		Query("filename", "a.png").
		Cookie(auth.DefaultCookieName, s.token(t)).
		Expect(t).
		Status(http.StatusOK).
		Body("png-bytes").
		Header("Content-Type", "image/png").
		Header("Content-Length", "9").
		Header("Content-Disposition", `attachment; filename="a.png"`).
		Header("X-Content-Type-Options", "nosniff").
		Header("Cache-Control", "private, max-age=3600").
		End()
}

func TestDownload_Rejections(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t)

	apitest.New().
		Handler(s.handler).
		Get("/api/files/download").
		Query("category", "images").
		Query("filename", "a.png").
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error", "Authentication required")).
		End()

	apitest.New().
		Handler(s.handler).
		Get("/api/files/download").
		Query("category", "images").
		Query("filename", "a.png").
		Cookie(auth.DefaultCookieName, "forged.token.value").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	cases := []struct {
		category, filename string
		status             int
		message            string
	}{
		{"documents", "../../etc/passwd", http.StatusBadRequest, "Invalid filename"},
		{"images", "..\\a.png", http.StatusBadRequest, "Invalid filename"},
		{"secrets", "a.png", http.StatusBadRequest, "Invalid category"},
		{"", "a.png", http.StatusBadRequest, "Missing category or filename parameter"},
		{"images", "b.png", http.StatusNotFound, "File not found in metadata"},
		{"documents", "handbook.pdf", http.StatusNotFound, "File not found on disk"},
	}
	for _, tc := range cases {
		apitest.New().
			Handler(s.handler).
			Get("/api/files/download").
			Query("category", tc.category).
			Query("filename", tc.filename).
			Cookie(auth.DefaultCookieName, token).
			Expect(t).
			Status(tc.status).
			Assert(jsonpath.Equal("$.error", tc.message)).
			End()
	}
}

func TestLoginThenDownload(t *testing.T) {
	s := newTestServer(t)

	res := apitest.New().
		Handler(s.handler).
		Post("/api/auth/login").
		JSON(`{"username":"john","password":"SecurePassword123!"}`).
		Expect(t).
		Status(http.StatusOK).
		End()

	var session string
	for _, c := range res.Response.Cookies() {
		if c.Name == auth.DefaultCookieName {
			session = c.Value
		}
	}
	require.NotEmpty(t, session)

	apitest.New().
		Handler(s.handler).
		Get("/api/auth/me").
		Cookie(auth.DefaultCookieName, session).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.user.id", "1")).
		Assert(jsonpath.Equal("$.user.username", "john")).
		End()

	apitest.New().
		Handler(s.handler).
		Get("/api/files/download").
		Query("category", "images").
		Query("filename", "a.png").
		Cookie(auth.DefaultCookieName, session).
		Expect(t).
		Status(http.StatusOK).
		Body("png-bytes").
		End()
}

func TestMembersData(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Get("/api/members/data").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(s.handler).
		Get("/api/members/data").
		Cookie(auth.DefaultCookieName, s.token(t)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.user.username", "john")).
		Assert(jsonpath.Len("$.files", 2)).
		Assert(jsonpath.Equal("$.files[0].filename", "a.png")).
		Assert(jsonpath.Equal("$.files[0].uploadDate", "2024-03-02")).
		End()
}

func TestMembersData_ManifestFailure(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.Remove(filepath.Join(s.dir, "member-files.json")))
	s = reopen(t, s)

	apitest.New().
		Handler(s.handler).
		Get("/api/members/data").
		Cookie(auth.DefaultCookieName, s.token(t)).
		Expect(t).
		Status(http.StatusInternalServerError).
		Assert(jsonpath.Equal("$.error", "Error loading data")).
		End()

	apitest.New().
		Handler(s.handler).
		Get("/api/files/download").
		Query("category", "images").
		Query("filename", "a.png").
		Cookie(auth.DefaultCookieName, s.token(t)).
		Expect(t).
		Status(http.StatusInternalServerError).
		Assert(jsonpath.Equal("$.error", "Internal server error")).
		End()
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t)

	apitest.New().
		Handler(s.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		HeaderPresent("X-Request-ID").
		HeaderNotPresent("Access-Control-Allow-Origin").
		End()

	apitest.New().
		Handler(s.handler).
		Get("/api/health").
		Header("X-Request-ID", "req-42").
		Header("Origin", "https://gunnforge.example").
		Expect(t).
		Status(http.StatusOK).
		Header("X-Request-ID", "req-42").
		Header("Access-Control-Allow-Origin", "https://gunnforge.example").
		Header("Access-Control-Allow-Credentials", "true").
		End()

	apitest.New().
		Handler(s.handler).
		Method(http.MethodOptions).
		URL("/api/auth/login").
		Header("Origin", "https://evil.example").
		Expect(t).
		HeaderNotPresent("Access-Control-Allow-Origin").
		End()
}
