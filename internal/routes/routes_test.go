package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/config"
	"github.com/gate-tracker/gate_tracker/internal/infra"
	"github.com/gate-tracker/gate_tracker/internal/logging"
	"github.com/gate-tracker/gate_tracker/internal/notification"
)

func testConfig() config.Config {
	return config.Config{
		AppName:          "tracker-test",
		AppEnv:           "development",
		JWTSecret:        "test-secret",
		RegistrationMode: config.RegistrationDirect,
		BcryptCost:       bcrypt.MinCost,
		CORSOrigins:      []string{"http://localhost:5173"},
	}
}

func newTestApp(t *testing.T, d Deps) *fiber.App {
	t.Helper()
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Audit == nil {
		d.Audit = audit.Discard()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(d.Logger)})
	require.NoError(t, Setup(app, d))
	return app
}

type call struct {
	method string
	path   string
	body   string
	token  string
	key    string
}

func do(t *testing.T, app *fiber.App, c call) (int, []byte) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if c.key != "" {
		req.Header.Set("Idempotency-Key", c.key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

type session struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Verified bool   `json:"verified"`
	} `json:"user"`
}

type day struct {
	Day   int     `json:"day"`
	Hours float64 `json:"hours"`
}

func exerciseUserFlow(t *testing.T, app *fiber.App) {
	status, raw := do(t, app, call{method: "POST", path: "/api/auth/register", body: `{"email":"alice@example.com","password":"Str0ng!Pass","name":"Alice"}`})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	registered := decode[session](t, raw)
	require.NotEmpty(t, registered.Token)

	status, _ = do(t, app, call{method: "POST", path: "/api/study-hours/save-day", body: `{"month":2,"year":2024,"day":5,"hours":3.5}`, token: registered.Token})
	require.Equal(t, fiber.StatusOK, status)
	status, raw = do(t, app, call{method: "GET", path: "/api/study-hours/month/2/2024", token: registered.Token})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []day{{Day: 5, Hours: 3.5}}, decode[[]day](t, raw))

	status, _ = do(t, app, call{method: "POST", path: "/api/study-hours/save-day", body: `{"month":2,"year":2024,"day":5,"hours":1.0}`, token: registered.Token})
	require.Equal(t, fiber.StatusOK, status)
	_, raw = do(t, app, call{method: "GET", path: "/api/study-hours/month/2/2024", token: registered.Token})
	assert.Equal(t, []day{{Day: 5, Hours: 1.0}}, decode[[]day](t, raw))

	status, raw = do(t, app, call{method: "POST", path: "/api/study-hours/save-day", body: `{"month":2,"year":2024,"day":5,"hours":24}`, token: registered.Token})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Hours must be less than 24", decode[map[string]any](t, raw)["message"])

	status, _ = do(t, app, call{method: "POST", path: "/api/curriculum/save", body: `{"subject":"OS","topic":"Paging","watched":true}`, token: registered.Token})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = do(t, app, call{method: "POST", path: "/api/curriculum/save", body: `{"subject":"OS","topic":"Paging","watched":false,"revised":true,"tested":false}`, token: registered.Token})
	require.Equal(t, fiber.StatusOK, status)
	_, raw = do(t, app, call{method: "GET", path: "/api/curriculum/all", token: registered.Token})
	topics := decode[[]map[string]any](t, raw)
	require.Len(t, topics, 1)
	assert.Equal(t, map[string]any{"subject": "OS", "topic": "Paging", "watched": false, "revised": true, "tested": false}, topics[0])

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/login", body: `{"email":"ALICE@example.com","password":"Str0ng!Pass"}`})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	login := decode[session](t, raw)

	status, raw = do(t, app, call{method: "GET", path: "/api/auth/me", token: login.Token})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice@example.com", decode[map[string]any](t, raw)["email"])

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/register", body: `{"email":"alice@example.com","password":"Str0ng!Pass","name":"Alice"}`})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", decode[map[string]any](t, raw)["code"])

	status, _ = do(t, app, call{method: "GET", path: "/api/study-hours/all"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func exerciseVisitorFlow(t *testing.T, app *fiber.App) {
	status, raw := do(t, app, call{method: "POST", path: "/api/visitor/register", body: `{"visitorId":"visitor_abc"}`})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, decode[map[string]any](t, raw)["isNew"])

	status, _ = do(t, app, call{method: "POST", path: "/api/visitor/study-hours/save", body: `{"visitorId":"visitor_abc","month":3,"year":2024,"day":9,"hours":30}`})
	require.Equal(t, fiber.StatusOK, status, "visitor hours are not capped at 24")
	status, _ = do(t, app, call{method: "POST", path: "/api/visitor/curriculum/save", body: `{"visitorId":"visitor_abc","subject":"DBMS","topic":"Joins","tested":true}`})
	require.Equal(t, fiber.StatusOK, status)

	_, raw = do(t, app, call{method: "GET", path: "/api/visitor/study-hours/visitor_abc/3/2024"})
	assert.Equal(t, []day{{Day: 9, Hours: 30}}, decode[[]day](t, raw))

	_, raw = do(t, app, call{method: "GET", path: "/api/visitor/curriculum/visitor_abc"})
	grouped := decode[map[string]map[string]map[string]bool](t, raw)
	assert.True(t, grouped["DBMS"]["Joins"]["tested"])

	_, raw = do(t, app, call{method: "GET", path: "/api/visitor/data/visitor_abc"})
	export := decode[map[string]any](t, raw)
	assert.Equal(t, "visitor_abc", export["visitorId"])
	assert.Equal(t, map[string]any{"hours": 30.0, "days": 1.0, "topics": 1.0, "completed": 1.0}, export["totals"])

	status, raw = do(t, app, call{method: "DELETE", path: "/api/visitor/data/visitor_abc"})
	require.Equal(t, fiber.StatusOK, status)
	deleted := decode[map[string]any](t, raw)["deleted"].(map[string]any)
	assert.Equal(t, 1.0, deleted["studyHours"])
	assert.Equal(t, 1.0, deleted["curriculum"])

	_, raw = do(t, app, call{method: "GET", path: "/api/visitor/study-hours/visitor_abc"})
	assert.JSONEq(t, `[]`, string(raw))

	status, _ = do(t, app, call{method: "GET", path: "/api/visitor/study-hours/bad%20id!"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestEndToEndMemory(t *testing.T) {
	app := newTestApp(t, Deps{Cfg: testConfig()})
	exerciseUserFlow(t, app)
	exerciseVisitorFlow(t, app)
}

func TestEndToEndSQLite(t *testing.T) {
	db, err := infra.NewSQLite(infra.MemorySQLite)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, infra.MigrateSQLite(context.Background(), db))

	app := newTestApp(t, Deps{Cfg: testConfig(), SQL: db})
	exerciseUserFlow(t, app)
	exerciseVisitorFlow(t, app)

	status, raw := do(t, app, call{method: "GET", path: "/healthz"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"database":"ok"`)
}

func TestOTPRegistrationOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	cfg := testConfig()
	cfg.RegistrationMode = config.RegistrationOTP
	inbox := notification.NewRecorder()
	app := newTestApp(t, Deps{Cfg: cfg, Cache: cache, Notifier: inbox})

	status, raw := do(t, app, call{method: "POST", path: "/api/auth/register", body: `{"email":"bob@example.com","password":"Str0ng!Pass","name":"Bob"}`})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	pending := decode[session](t, raw)
	assert.Empty(t, pending.Token)
	assert.True(t, mr.Exists("otp:registration:bob@example.com"))

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/login", body: `{"email":"bob@example.com","password":"Str0ng!Pass"}`})
	assert.Equal(t, fiber.StatusForbidden, status, string(raw))

	msg, ok := inbox.Last("bob@example.com")
	require.True(t, ok)
	status, raw = do(t, app, call{method: "POST", path: "/api/auth/verify-otp", body: `{"email":"bob@example.com","otp":"` + msg.Body + `"}`})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	verified := decode[session](t, raw)
	require.NotNil(t, verified.User)
	assert.True(t, verified.User.Verified)
	assert.NotEmpty(t, verified.Token)
	assert.False(t, mr.Exists("otp:registration:bob@example.com"))

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/resend-otp", body: `{"email":"bob@example.com"}`})
	assert.Equal(t, fiber.StatusNotFound, status, string(raw))

	status, raw = do(t, app, call{method: "GET", path: "/healthz"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"redis":"ok"`)
}

func TestRateLimitedWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	app := newTestApp(t, Deps{Cfg: cfg})

	for i := 0; i < 3; i++ {
		status, _ := do(t, app, call{method: "POST", path: "/api/auth/resend-otp", body: `{"email":"carol@example.com"}`})
		assert.Equal(t, fiber.StatusNotFound, status)
	}
	status, raw := do(t, app, call{method: "POST", path: "/api/auth/resend-otp", body: `{"email":"carol@example.com"}`})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	body := decode[map[string]any](t, raw)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, "Too many OTP resend attempts, please try again later", body["message"])
}

func TestSetupRequiresDatabaseOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard(), Registry: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, Deps{Cfg: testConfig()})

	status, raw := do(t, app, call{method: "GET", path: "/api/health"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Backend is running", decode[map[string]any](t, raw)["message"])

	status, raw = do(t, app, call{method: "GET", path: "/healthz"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"database":"memory"`)

	status, raw = do(t, app, call{method: "GET", path: "/metrics"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "tracker_http_requests_total")
}

func TestIdempotencyKeyNeverReplaysLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	app := newTestApp(t, Deps{Cfg: testConfig(), Cache: cache})

	status, raw := do(t, app, call{method: "POST", path: "/api/auth/register", body: `{"email":"alice@example.com","password":"Str0ng!Pass","name":"Alice"}`})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/login", body: `{"email":"alice@example.com","password":"Str0ng!Pass"}`, key: "k1"})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	token := decode[session](t, raw).Token
	require.NotEmpty(t, token)

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/login", body: `{"email":"alice@example.com","password":"WrongPass1!"}`, key: "k1"})
	assert.Equal(t, fiber.StatusUnauthorized, status, string(raw))
	assert.NotContains(t, string(raw), token)

	// Data routes still replay retries from the same caller.
	save := call{method: "POST", path: "/api/study-hours/save-day", body: `{"month":2,"year":2024,"day":5,"hours":3}`, token: token, key: "save-1"}
	status, first := do(t, app, save)
	require.Equal(t, fiber.StatusOK, status, string(first))
	status, again := do(t, app, save)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(first), string(again))

	save.body = `{"month":2,"year":2024,"day":6,"hours":1}`
	status, raw = do(t, app, save)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, string(raw))
}

func TestLoginWithEmailedCodeOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	inbox := notification.NewRecorder()
	app := newTestApp(t, Deps{Cfg: testConfig(), Cache: cache, Notifier: inbox})

	status, raw := do(t, app, call{method: "POST", path: "/api/auth/register", body: `{"email":"dave@example.com","password":"Str0ng!Pass","name":"Dave"}`})
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/login-otp", body: `{"email":"dave@example.com"}`})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.True(t, mr.Exists("otp:login:dave@example.com"))
	assert.False(t, mr.Exists("otp:registration:dave@example.com"))

	msg, ok := inbox.Last("dave@example.com")
	require.True(t, ok)
	assert.Equal(t, notification.KindLoginCode, msg.Kind)
	assert.NotEqual(t, msg.Body, mr.HGet("otp:login:dave@example.com", "code_hash"))

	status, raw = do(t, app, call{method: "POST", path: "/api/auth/login-verify", body: `{"email":"dave@example.com","otp":"` + msg.Body + `"}`})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	logged := decode[session](t, raw)
	assert.Equal(t, "Login successful!", logged.Message)
	assert.NotEmpty(t, logged.Token)
	assert.False(t, mr.Exists("otp:login:dave@example.com"))
}
