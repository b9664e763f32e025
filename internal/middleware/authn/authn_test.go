package authn

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"account_service/internal/lib/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func protected(t *testing.T) http.Handler {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := AccountID(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id))
	}))
}

func TestAuthn(t *testing.T) {
	valid, err := jwt.NewToken("acc-1", secret, time.Hour, time.Now())
	require.NoError(t, err)

	expired, err := jwt.NewToken("acc-1", secret, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	foreign, err := jwt.NewToken("acc-1", "other-secret", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "valid", header: "Bearer " + valid, wantCode: http.StatusOK, wantBody: "acc-1"},
		{name: "lowercase scheme", header: "bearer " + valid, wantCode: http.StatusOK, wantBody: "acc-1"},
		{name: "missing", header: "", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, wantCode: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", wantCode: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantCode: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, wantCode: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			protected(t).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"status":false`)
			}
		})
	}
}

func TestAccountID_Missing(t *testing.T) {
	_, ok := AccountID(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
