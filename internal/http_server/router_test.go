package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"account_service/internal/auth"
	"account_service/internal/http_server/handlers"
	"account_service/internal/images"
	"account_service/internal/lib/jwt"
	"account_service/internal/metrics"
	"account_service/internal/models"
	"account_service/internal/storage/memory"
	"account_service/internal/storage/sqlite"
	"account_service/internal/users"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "router-secret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type capturePublisher struct {
	mu   sync.Mutex
	sent []models.Message
	err  error
}

func (p *capturePublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.sent = append(p.sent, msg)

	return nil
}

func (p *capturePublisher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sent)
}

func (p *capturePublisher) codeFor(t *testing.T, email string) string {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.sent) - 1; i >= 0; i-- {
		if p.sent[i].Email == email {
			return p.sent[i].Code
		}
	}

	t.Fatalf("no otp sent to %s", email)

	return ""
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type sessionData struct {
	Token string             `json:"token"`
	User  models.AccountView `json:"user"`
}

type testServer struct {
	srv       *httptest.Server
	pub       *capturePublisher
	uploadDir string
	registry  *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pending := memory.NewPendingStore(0)
	pub := &capturePublisher{}
	uploadDir := t.TempDir()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	authSvc := auth.New(log, store, pending, pub, auth.Config{
		TokenSecret: testSecret,
		TokenTTL:    30 * 24 * time.Hour,
		BcryptCost:  bcrypt.MinCost,
	}, auth.WithRecorder(m))

	usersSvc := users.New(log, store, images.NewLocal(uploadDir, "http://localhost:8080"))

	router := NewRouter(Deps{
		Log:         log,
		Auth:        authSvc,
		Users:       usersSvc,
		TokenSecret: testSecret,
		Metrics:     m,
		Registry:    registry,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, pub: pub, uploadDir: uploadDir, registry: registry}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()

	res, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))

	return res.StatusCode, env
}

func signupBody(email string) map[string]string {
	return map[string]string{
		"firstName":       "Ann",
		"lastName":        "Lee",
		"email":           email,
		"password":        "secret1",
		"confirmPassword": "secret1",
	}
}

// register runs signup and verify-otp and returns the session.
func (ts *testServer) register(t *testing.T, prefix, email string) sessionData {
	t.Helper()

	code, env := ts.do(t, http.MethodPost, prefix+"/signup", "", signupBody(email))
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = ts.do(t, http.MethodPost, prefix+"/verify-otp", "", map[string]string{
		"email": email,
		"otp":   ts.pub.codeFor(t, email),
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	var s sessionData
	require.NoError(t, json.Unmarshal(env.Data, &s))

	return s
}

func TestRouter_ExampleFlow(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Status)
	assert.Equal(t, "OTP sent to email. Please verify.", env.Message)
	assert.NotContains(t, string(env.Data), ts.pub.codeFor(t, "a@x.com"))

	code, env = ts.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{
		"email": "a@x.com",
		"otp":   ts.pub.codeFor(t, "a@x.com"),
	})
	require.Equal(t, http.StatusOK, code)

	var verified sessionData
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	assert.NotEmpty(t, verified.Token)
	assert.Equal(t, "a@x.com", verified.User.Email)
	assert.NotContains(t, string(env.Data), "pass")

	code, env = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Login successful.", env.Message)

	var logged sessionData
	require.NoError(t, json.Unmarshal(env.Data, &logged))

	claims, err := jwt.ParseToken(logged.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, verified.User.ID, claims.AccountID)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestRouter_BarePaths(t *testing.T) {
	ts := newTestServer(t)

	s := ts.register(t, "", "a@x.com")

	code, _ := ts.do(t, http.MethodGet, "/users", s.Token, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_SignupErrors(t *testing.T) {
	ts := newTestServer(t)

	body := signupBody("a@x.com")
	body["confirmPassword"] = "other1"

	code, env := ts.do(t, http.MethodPost, "/api/auth/signup", "", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Status)
	assert.Equal(t, "Passwords do not match.", env.Message)

	code, _ = ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	require.Equal(t, http.StatusOK, code)

	code, env = ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "OTP already sent. Please check your email.", env.Message)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/auth/signup", bytes.NewBufferString("{"))
	require.NoError(t, err)
	code, env = ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Failed to decode request", env.Message)
}

func TestRouter_SignupLongPassword(t *testing.T) {
	ts := newTestServer(t)

	body := signupBody("a@x.com")
	body["password"] = strings.Repeat("a", 80)
	body["confirmPassword"] = body["password"]

	code, env := ts.do(t, http.MethodPost, "/api/auth/signup", "", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Status)
	assert.Equal(t, "Password must be at most 72 bytes.", env.Message)
	assert.Zero(t, ts.pub.count())
}

func TestWriteTimeout(t *testing.T) {
	assert.Greater(t, WriteTimeout(4*time.Second), handlers.RequestTimeout)
	assert.Greater(t, WriteTimeout(0), handlers.RequestTimeout)
	assert.Equal(t, 30*time.Second, WriteTimeout(30*time.Second))
}

func TestRouter_SignupDispatchFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.pub.setErr(errors.New("smtp down"))

	code, env := ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.False(t, env.Status)

	ts.pub.setErr(nil)

	code, _ = ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_VerifyErrors(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email and OTP are required.", env.Message)

	code, env = ts.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": "a@x.com", "otp": "123456"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No pending registration for this email.", env.Message)

	code, _ = ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	require.Equal(t, http.StatusOK, code)

	wrong := "000000"
	if ts.pub.codeFor(t, "a@x.com") == wrong {
		wrong = "111111"
	}

	code, env = ts.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": "a@x.com", "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid OTP.", env.Message)
}

func TestRouter_ResendOTP(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/auth/resend-otp", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No pending registration for this email.", env.Message)

	code, _ = ts.do(t, http.MethodPost, "/api/auth/signup", "", signupBody("a@x.com"))
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodPost, "/api/auth/resend-otp", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, ts.pub.count())

	code, _ = ts.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{
		"email": "a@x.com",
		"otp":   ts.pub.codeFor(t, "a@x.com"),
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_LoginErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "/api/auth", "a@x.com")

	code, env := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "wrong1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid credentials.", env.Message)

	code, env = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid credentials.", env.Message)

	code, env = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bad", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid email format.", env.Message)
}

func TestRouter_ListUsers(t *testing.T) {
	ts := newTestServer(t)

	a := ts.register(t, "/api/auth", "a@x.com")
	ts.register(t, "/api/auth", "b@x.com")
	ts.register(t, "/api/auth", "c@x.com")

	code, env := ts.do(t, http.MethodGet, "/api/users", a.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Users fetched successfully", env.Message)

	var list []models.AccountView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)

	for _, v := range list {
		assert.NotEqual(t, a.User.ID, v.ID)
	}
	assert.NotContains(t, string(env.Data), "pass")
	assert.NotContains(t, string(env.Data), "otp")
}

func TestRouter_Unauthorized(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Status)

	code, _ = ts.do(t, http.MethodPost, "/api/users/update", "not-a-token", map[string]string{"about": "x"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_UpdateProfileJSON(t *testing.T) {
	ts := newTestServer(t)
	s := ts.register(t, "/api/auth", "a@x.com")

	code, env := ts.do(t, http.MethodPost, "/api/users/update", s.Token, map[string]string{
		"about":  "hello",
		"mobile": "+100",
		"image":  "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "User updated successfully", env.Message)

	var view models.AccountView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "hello", view.About)
	assert.Equal(t, "+100", view.Mobile)
	assert.Contains(t, view.Image, "http://localhost:8080/uploads/user_"+s.User.ID+"_")

	files, err := os.ReadDir(ts.uploadDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	code, env = ts.do(t, http.MethodPost, "/api/users/update", s.Token, map[string]string{"image": "garbage"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid image data", env.Message)
}

func TestRouter_UpdateProfileMultipart(t *testing.T) {
	ts := newTestServer(t)
	s := ts.register(t, "/api/auth", "a@x.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("about", "multi"))
	fw, err := mw.CreateFormFile("image", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/users/update", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.Token)

	code, env := ts.send(t, req)
	require.Equal(t, http.StatusOK, code, env.Message)

	var view models.AccountView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "multi", view.About)
	require.NotEmpty(t, view.Image)
	assert.FileExists(t, filepath.Join(ts.uploadDir, filepath.Base(view.Image)))
}

func TestRouter_UpdateProfileValidation(t *testing.T) {
	ts := newTestServer(t)
	s := ts.register(t, "/api/auth", "a@x.com")

	code, env := ts.do(t, http.MethodPost, "/api/users/update", s.Token, map[string]string{
		"mobile": "0123456789012345678901234567890123456789",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Status)
}

func TestRouter_HealthMetricsNotFound(t *testing.T) {
	ts := newTestServer(t)

	res, err := ts.srv.Client().Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "secret1"})

	res, err = ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `account_auth_events_total{operation="login",result="rejected"} 1`)

	code, env := ts.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Route not found", env.Message)
}
