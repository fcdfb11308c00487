package buildtrack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrack/buildtrack"
)

type httpEnv struct {
	*accountsEnv
	app *fiber.App
	hub *buildtrack.ChatHub
}

func newHTTPEnv(siteNames ...string) *httpEnv {
	env := newAccountsEnv(siteNames...)
	hub := buildtrack.NewChatHub(nil)

	app := fiber.New()
	authware := buildtrack.RequireAuth(env.tokens, env.repo, nil)
	adminware := buildtrack.RequireAdmin(nil)

	buildtrack.RegisterAuthRoutes(
		app.Group("/api/auth"),
		buildtrack.NewAuthController(env.svc, nil),
		authware, adminware,
	)
	buildtrack.RegisterChatRoutes(
		app.Group("/api/chat"),
		buildtrack.NewChatController(env.repo, hub, nil),
		authware, adminware,
	)

	return &httpEnv{accountsEnv: env, app: app, hub: hub}
}

func (env *httpEnv) do(t *testing.T, method, path, token string, payload any) (*http.Response, map[string]any) {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (env *httpEnv) tokenFor(t *testing.T, id uuid.UUID) string {
	t.Helper()
	token, err := env.tokens.Generate(id)
	require.NoError(t, err)
	return token
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		env := newHTTPEnv()

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
			"name":            "Jordan Mason",
			"email":           "mason@example.com",
			"phone":           "5551234567",
			"password":        "hardhat99",
			"confirmPassword": "hardhat99",
		})

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		user := body["user"].(map[string]any)
		assert.Equal(t, "mason@example.com", user["email"])
		assert.Equal(t, false, user["isEmailVerified"])
	})

	t.Run("validation failure", func(t *testing.T) {
		env := newHTTPEnv()

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
			"name":            "Jordan Mason",
			"email":           "not-an-email",
			"phone":           "5551234567",
			"password":        "hardhat99",
			"confirmPassword": "hardhat99",
		})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("password confirmation mismatch", func(t *testing.T) {
		env := newHTTPEnv()

		resp, _ := env.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
			"name":            "Jordan Mason",
			"email":           "mason@example.com",
			"phone":           "5551234567",
			"password":        "hardhat99",
			"confirmPassword": "different",
		})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := newHTTPEnv()
		env.register(t, "mason@example.com", "hardhat99")

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
			"name":            "Jordan Mason",
			"email":           "mason@example.com",
			"phone":           "5551234567",
			"password":        "hardhat99",
			"confirmPassword": "hardhat99",
		})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, buildtrack.TextCodeDuplicateEmail, errBody["text_code"])
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("success envelope carries token and user", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		env.adminVerify(t, result)

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "mason@example.com",
			"password": "hardhat99",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["token"])
		user := body["user"].(map[string]any)
		assert.Equal(t, "mason@example.com", user["email"])
		assert.Nil(t, user["passwordHash"], "hash must never serialize")
	})

	t.Run("bad credentials", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		env.adminVerify(t, result)

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "mason@example.com",
			"password": "wrong",
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("locked account renders 423", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		env.adminVerify(t, result)

		for i := 0; i < buildtrack.MaxLoginAttempts; i++ {
			env.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
				"email":    "mason@example.com",
				"password": "wrong",
			})
		}

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "mason@example.com",
			"password": "hardhat99",
		})

		assert.Equal(t, fiber.StatusLocked, resp.StatusCode)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, buildtrack.TextCodeAccountLocked, errBody["text_code"])
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		env := newHTTPEnv()

		resp, body := env.do(t, fiber.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, buildtrack.TextCodeTokenMissing, errBody["text_code"])
	})

	t.Run("garbage token", func(t *testing.T) {
		env := newHTTPEnv()

		resp, _ := env.do(t, fiber.MethodGet, "/api/auth/me", "garbage", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token loads the account", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		token := env.tokenFor(t, result.UserID)

		resp, body := env.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		user := body["user"].(map[string]any)
		assert.Equal(t, "mason@example.com", user["email"])
	})

	t.Run("token for an unverified email is refused", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.register(t, "mason@example.com", "hardhat99")
		token := env.tokenFor(t, result.UserID)

		resp, body := env.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, buildtrack.TextCodeEmailNotVerified, errBody["text_code"])
	})

	t.Run("token for a deleted account is refused", func(t *testing.T) {
		env := newHTTPEnv()
		token := env.tokenFor(t, uuid.New())

		resp, _ := env.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("non-admin gets 403", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		token := env.tokenFor(t, result.UserID)

		resp, _ := env.do(t, fiber.MethodGet, "/api/auth/pending-users", token, nil)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("verify-user end to end", func(t *testing.T) {
		env := newHTTPEnv("North Yard")
		admin := env.addAdmin(t, "boss@example.com")
		adminToken := env.tokenFor(t, admin.ID)
		result := env.registerVerified(t, "mason@example.com", "hardhat99")

		resp, body := env.do(t, fiber.MethodGet, "/api/auth/pending-users", adminToken, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["count"])

		siteID := env.repo.sites.sites[0].ID.String()
		resp, body = env.do(t, fiber.MethodPost, "/api/auth/verify-user", adminToken, fiber.Map{
			"userId":        result.UserID.String(),
			"assignedSites": []string{siteID},
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		user := body["user"].(map[string]any)
		assert.Equal(t, true, user["isAdminVerified"])

		_, body = env.do(t, fiber.MethodGet, "/api/auth/pending-users", adminToken, nil)
		assert.Equal(t, float64(0), body["count"])
	})

	t.Run("verify-user with a bad site id", func(t *testing.T) {
		env := newHTTPEnv("North Yard")
		admin := env.addAdmin(t, "boss@example.com")
		adminToken := env.tokenFor(t, admin.ID)
		result := env.registerVerified(t, "mason@example.com", "hardhat99")

		resp, body := env.do(t, fiber.MethodPost, "/api/auth/verify-user", adminToken, fiber.Map{
			"userId":        result.UserID.String(),
			"assignedSites": []string{env.repo.sites.sites[0].ID.String(), uuid.NewString()},
		})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, buildtrack.TextCodeInvalidSiteRef, errBody["text_code"])
	})

	t.Run("all-sites", func(t *testing.T) {
		env := newHTTPEnv("North Yard", "Dockside")
		admin := env.addAdmin(t, "boss@example.com")
		adminToken := env.tokenFor(t, admin.ID)

		resp, body := env.do(t, fiber.MethodGet, "/api/auth/all-sites", adminToken, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(2), body["count"])
	})
}

func TestChatEndpoints(t *testing.T) {
	seed := func(t *testing.T, env *httpEnv, siteID string, n int) {
		t.Helper()
		base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
		for i := 0; i < n; i++ {
			_, err := env.repo.chat.Save(context.Background(), &buildtrack.ChatMessage{
				SiteID:    siteID,
				Sender:    "Jordan Mason",
				Body:      fmt.Sprintf("message %d", i),
				Timestamp: base.Add(time.Duration(i) * time.Second),
				IsUser:    true,
			})
			require.NoError(t, err)
		}
	}

	t.Run("history returns the newest window oldest first", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		token := env.tokenFor(t, result.UserID)
		seed(t, env, "site-1", 150)

		resp, body := env.do(t, fiber.MethodGet, "/api/chat/site-1", token, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(buildtrack.ChatHistoryLimit), body["count"])

		messages := body["messages"].([]any)
		require.Len(t, messages, buildtrack.ChatHistoryLimit)
		first := messages[0].(map[string]any)
		last := messages[len(messages)-1].(map[string]any)
		assert.Equal(t, "message 50", first["message"], "oldest surviving message first")
		assert.Equal(t, "message 149", last["message"])
	})

	t.Run("post message persists and broadcasts", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		token := env.tokenFor(t, result.UserID)

		listener := env.hub.NewClient()
		env.hub.Join(listener, "site-1")

		resp, body := env.do(t, fiber.MethodPost, "/api/chat/message", token, fiber.Map{
			"siteId":  "site-1",
			"message": "rebar delivery at noon",
			"isUser":  true,
		})

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		saved := body["chatMessage"].(map[string]any)
		assert.Equal(t, "rebar delivery at noon", saved["message"])
		assert.Equal(t, "Jordan Mason", saved["sender"], "sender comes from the authenticated account")

		frames := drain(listener)
		require.Len(t, frames, 1)
		assert.Contains(t, string(frames[0]), buildtrack.EventNewMessage)
	})

	t.Run("clearing a site needs admin", func(t *testing.T) {
		env := newHTTPEnv()
		result := env.registerVerified(t, "mason@example.com", "hardhat99")
		token := env.tokenFor(t, result.UserID)
		seed(t, env, "site-1", 3)

		resp, _ := env.do(t, fiber.MethodDelete, "/api/chat/site-1", token, nil)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

		admin := env.addAdmin(t, "boss@example.com")
		adminToken := env.tokenFor(t, admin.ID)

		resp, body := env.do(t, fiber.MethodDelete, "/api/chat/site-1", adminToken, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(3), body["deletedCount"])

		_, body = env.do(t, fiber.MethodGet, "/api/chat/site-1", adminToken, nil)
		assert.Equal(t, float64(0), body["count"])
	})
}

func TestLogoutEndpoint(t *testing.T) {
	env := newHTTPEnv()
	result := env.registerVerified(t, "mason@example.com", "hardhat99")
	token := env.tokenFor(t, result.UserID)

	resp, body := env.do(t, fiber.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
}
