package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/storage"
)

type userStore struct {
	repository.UserRepository
	users map[string]*domain.User
}

func (s userStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	users := userStore{users: map[string]*domain.User{
		"agent":    {ID: "agent", Email: "agent@example.com", IsActive: true},
		"admin":    {ID: "admin", Email: "admin@example.com", IsActive: true, IsAdmin: true},
		"disabled": {ID: "disabled", Email: "disabled@example.com"},
	}}

	images, err := storage.NewImageStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, time.Second)
	app.Get("/panic", func(*fiber.Ctx) error { panic("boom") })
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", deps),
		Auth:           handlers.NewAuthHandler(nil),
		Users:          handlers.NewUsersHandler(nil),
		Departments:    handlers.NewDepartmentsHandler(nil),
		Tickets:        handlers.NewTicketsHandler(nil, images),
		Comments:       handlers.NewCommentsHandler(nil, images),
		Analytics:      handlers.NewAnalyticsHandler(nil),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, users),
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(&domain.User{ID: userID})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp.StatusCode, payload
}

// doForm sends a multipart body with the given fields and one file part.
func (s *testServer) doForm(t *testing.T, path, token string, fields map[string]string, file, content string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != "" {
		part, err := w.CreateFormFile(file, "upload.bin")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func errorCode(payload map[string]any) string {
	errObj, _ := payload["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, map[string]handlers.Pinger{"postgres": pinger{}, "redis": pinger{}})
	status, body := srv.do(t, "GET", "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = srv.do(t, "GET", "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	srv = newTestServer(t, map[string]handlers.Pinger{"postgres": pinger{}, "redis": pinger{err: errors.New("connection refused")}})
	status, body = srv.do(t, "GET", "/health/ready", "", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, "GET", "/api/tickets", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = srv.do(t, "GET", "/api/tickets", "not-a-token", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = srv.do(t, "GET", "/api/tickets", srv.token(t, "disabled"), "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = srv.do(t, "GET", "/api/tickets", srv.token(t, "ghost"), "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminGuard(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, "GET", "/api/users", srv.token(t, "agent"), "")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, _ = srv.do(t, "POST", "/api/departments", srv.token(t, "agent"), `{"name":"Parts"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestMe(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body := srv.do(t, "GET", "/api/auth/me", srv.token(t, "admin"), "")
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "admin@example.com", data["email"])
	assert.Equal(t, true, data["is_admin"])
	assert.NotContains(t, data, "password_hash")
}

func TestTicketRequestsRejectedBeforeService(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.token(t, "agent")

	status, body := srv.do(t, "GET", "/api/tickets/not-a-uuid", token, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, "PUT", "/api/tickets/7f0c8a1e-7d0c-4a51-9d5d-6f8de8f7f1a2", token, `{"title":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = srv.do(t, "GET", "/api/tickets?department_id=abc", token, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = srv.do(t, "GET", "/api/tickets/my-department?limit=-1", token, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestMultipartTicketCreateRejectedBeforeService(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.token(t, "agent")
	fields := map[string]string{
		"title":                  "Brake noise",
		"description":            "Squeal on cold start",
		"assigned_department_id": "7f0c8a1e-7d0c-4a51-9d5d-6f8de8f7f1a2",
		"deadline":               "2030-01-02T15:04:05Z",
	}

	status, body := srv.doForm(t, "/api/tickets", token, fields, "description_image", "plain text, not an image")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	fields["deadline"] = "next week"
	status, body = srv.doForm(t, "/api/tickets", token, fields, "", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	fields["deadline"] = "2030-01-02T15:04:05Z"
	fields["description_image_url"] = "javascript:alert(1)"
	status, body = srv.doForm(t, "/api/tickets", token, fields, "", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestCommentRequestsRejectedBeforeService(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.token(t, "agent")

	status, body := srv.do(t, "GET", "/api/tickets/42/comments", token, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = srv.do(t, "DELETE", "/api/comments/not-a-uuid", token, "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = srv.do(t, "PUT", "/api/comments/7f0c8a1e-7d0c-4a51-9d5d-6f8de8f7f1a2", token, `{"comment_text":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestErrorMiddleware(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, "GET", "/nope", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, "GET", "/panic", "", "")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(body))
}
