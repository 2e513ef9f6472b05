package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/api/http/handlers"
	"github.com/spec-kit/ticket-scheduler/internal/auth"
	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/config"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	"github.com/spec-kit/ticket-scheduler/internal/observability"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	"github.com/spec-kit/ticket-scheduler/internal/service"
	"github.com/spec-kit/ticket-scheduler/internal/worker"
)

const operatorKey = "correct horse battery staple"

type stubRunner struct {
	name   string
	report worker.TickReport
	err    error
	calls  int
}

func (s *stubRunner) Name() string            { return s.name }
func (s *stubRunner) Interval() time.Duration { return time.Minute }
func (s *stubRunner) RunOnce(context.Context) (worker.TickReport, error) {
	s.calls++
	return s.report, s.err
}

type testAPI struct {
	app    *fiber.App
	mute   *stubRunner
	locked *stubRunner
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	hash, err := auth.HashOperatorKey(operatorKey)
	require.NoError(t, err)

	clk := clock.Fake(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repository.NewMemoryTicketRepository(clk),
		MuteRepo:    repository.NewMemoryMuteRepository(clk),
		HistoryRepo: repository.NewMemoryTicketHistoryRepository(clk),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Clock:       clk,
	})
	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		OperatorKeyHash:       hash,
		OperatorID:            4242,
	})
	metrics := observability.NewMetrics()
	mute := &stubRunner{name: "mute", report: worker.TickReport{Released: 2}}
	locked := &stubRunner{name: "archive", err: worker.ErrLeaseHeld}

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-scheduler", "test", nil),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Mutes:          handlers.NewMutesHandler(tickets),
		Schedulers:     handlers.NewSchedulersHandler(metrics, mute, locked),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
	})
	return &testAPI{app: app, mute: mute, locked: locked}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testAPI) login(t *testing.T, role domain.OperatorRole) string {
	t.Helper()
	status, body := a.do(t, fiber.MethodPost, "/auth/login", "", map[string]any{"key": operatorKey, "role": role})
	require.Equal(t, fiber.StatusOK, status, body)
	data := body["data"].(map[string]any)
	return data["token"].(string)
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestLoginRejectsWrongKey(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(t, fiber.MethodPost, "/auth/login", "", map[string]any{"key": "nope"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	mod := api.login(t, domain.OperatorRoleModerator)
	viewer := api.login(t, domain.OperatorRoleViewer)

	status, body := api.do(t, fiber.MethodPost, "/api/v1/tickets", mod, map[string]any{
		"user_id":   "880000000000000001",
		"guild_id":  "990000000000000001",
		"thread_id": "770000000000000001",
		"category":  "support",
		"subject":   "role missing",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "T001", data(body)["ticket_id"])
	assert.Equal(t, "880000000000000001", data(body)["user_id"])

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/tickets/T001/claim", viewer, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = api.do(t, fiber.MethodPost, "/api/v1/tickets/T001/claim", mod, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, data(body)["applied"])
	ticket := data(body)["ticket"].(map[string]any)
	assert.Equal(t, "claimed", ticket["status"])
	assert.Equal(t, "4242", ticket["claimed_by"])

	status, body = api.do(t, fiber.MethodPost, "/api/v1/tickets/T001/close", mod, map[string]any{"reason": "fixed"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, data(body)["applied"])

	status, body = api.do(t, fiber.MethodPost, "/api/v1/tickets/T001/close", mod, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, false, data(body)["applied"], "a second close is rejected, not an error")

	status, body = api.do(t, fiber.MethodGet, "/api/v1/threads/770000000000000001/ticket", viewer, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "closed", data(body)["status"])
	assert.Equal(t, "fixed", data(body)["close_reason"])

	status, body = api.do(t, fiber.MethodGet, "/api/v1/tickets/T001/history", viewer, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"], 2)

	status, body = api.do(t, fiber.MethodGet, "/api/v1/guilds/990000000000000001/stats", viewer, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, data(body)["closed"])
	assert.EqualValues(t, 1, data(body)["total_closed"])
}

func TestTicketErrors(t *testing.T) {
	api := newTestAPI(t)
	mod := api.login(t, domain.OperatorRoleModerator)

	status, body := api.do(t, fiber.MethodGet, "/api/v1/tickets/T404", mod, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/tickets/T404/claim", mod, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = api.do(t, fiber.MethodGet, "/api/v1/guilds/abc/stats", mod, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = api.do(t, fiber.MethodGet, "/api/v1/tickets/T001", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = api.do(t, fiber.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	mod := api.login(t, domain.OperatorRoleModerator)

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	status, body := api.do(t, fiber.MethodPost, "/api/v1/tickets", mod, map[string]any{
		"user_id":  "1",
		"guild_id": "2",
		"category": "support",
		"subject":  string(long),
	})
	require.Equal(t, fiber.StatusBadRequest, status, body)
	apiErr := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", apiErr["code"])
	details := apiErr["details"].(map[string]any)
	assert.Equal(t, "required", details["thread_id"])
	assert.Equal(t, "max=100", details["subject"])

	status, _ = api.do(t, fiber.MethodPost, "/auth/login", "", map[string]any{"role": "admin"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateMute(t *testing.T) {
	api := newTestAPI(t)
	mod := api.login(t, domain.OperatorRoleModerator)
	viewer := api.login(t, domain.OperatorRoleViewer)

	status, _ := api.do(t, fiber.MethodPost, "/api/v1/guilds/990000000000000001/mutes", viewer, map[string]any{
		"user_id": "880000000000000001",
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := api.do(t, fiber.MethodPost, "/api/v1/guilds/990000000000000001/mutes", mod, map[string]any{
		"user_id":          "880000000000000001",
		"duration_minutes": 30,
		"reason":           "spam",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	mute := data(body)
	assert.Equal(t, "880000000000000001", mute["user_id"])
	assert.Equal(t, "990000000000000001", mute["guild_id"])
	assert.Equal(t, "4242", mute["muter_id"])
	assert.EqualValues(t, 30, mute["duration_minutes"])
	assert.Equal(t, "2024-06-01T00:30:00Z", mute["expires_at"])
	assert.Equal(t, true, mute["active"])

	status, body = api.do(t, fiber.MethodPost, "/api/v1/guilds/990000000000000001/mutes", mod, map[string]any{
		"duration_minutes": 0,
	})
	require.Equal(t, fiber.StatusBadRequest, status, body)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "required", details["user_id"])
	assert.Equal(t, "min=1", details["duration_minutes"])

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/guilds/abc/mutes", mod, map[string]any{"user_id": "1"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestListMutes(t *testing.T) {
	api := newTestAPI(t)
	mod := api.login(t, domain.OperatorRoleModerator)
	viewer := api.login(t, domain.OperatorRoleViewer)

	for _, user := range []string{"11", "12"} {
		status, body := api.do(t, fiber.MethodPost, "/api/v1/guilds/5/mutes", mod, map[string]any{"user_id": user})
		require.Equal(t, fiber.StatusCreated, status, body)
	}
	status, body := api.do(t, fiber.MethodPost, "/api/v1/guilds/6/mutes", mod, map[string]any{"user_id": "13"})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = api.do(t, fiber.MethodGet, "/api/v1/guilds/5/mutes", viewer, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	items := body["data"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "11", first["user_id"])
	assert.Nil(t, first["duration_minutes"], "indefinite mute")
	assert.Nil(t, first["expires_at"])

	status, _ = api.do(t, fiber.MethodGet, "/api/v1/guilds/5/mutes", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestReleaseMute(t *testing.T) {
	api := newTestAPI(t)
	mod := api.login(t, domain.OperatorRoleModerator)
	viewer := api.login(t, domain.OperatorRoleViewer)

	status, body := api.do(t, fiber.MethodPost, "/api/v1/guilds/5/mutes", mod, map[string]any{"user_id": "11"})
	require.Equal(t, fiber.StatusCreated, status, body)
	id := data(body)["id"].(string)

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/mutes/"+id+"/release", viewer, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = api.do(t, fiber.MethodPost, "/api/v1/mutes/"+id+"/release", mod, map[string]any{"reason": "appeal accepted"})
	require.Equal(t, fiber.StatusOK, status, body)
	released := data(body)
	assert.Equal(t, false, released["active"])
	assert.Equal(t, "appeal accepted", released["release_reason"])
	assert.Equal(t, "4242", released["released_by"])

	status, body = api.do(t, fiber.MethodPost, "/api/v1/mutes/"+id+"/release", mod, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/mutes/999/release", mod, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = api.do(t, fiber.MethodGet, "/api/v1/guilds/5/mutes", viewer, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Empty(t, body["data"])
}

func TestSchedulerTrigger(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, domain.OperatorRoleAdmin)
	mod := api.login(t, domain.OperatorRoleModerator)

	status, _ := api.do(t, fiber.MethodPost, "/api/v1/schedulers/mute/run", mod, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := api.do(t, fiber.MethodPost, "/api/v1/schedulers/mute/run", admin, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	report := data(body)["report"].(map[string]any)
	assert.EqualValues(t, 2, report["released"])
	assert.Equal(t, 1, api.mute.calls)

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/schedulers/archive/run", admin, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = api.do(t, fiber.MethodPost, "/api/v1/schedulers/nope/run", admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = api.do(t, fiber.MethodGet, "/api/v1/schedulers", mod, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 2)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = api.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}
