package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_MintAndValidate(t *testing.T) {
	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := a.Mint("alice", []string{"release-managers"})
	require.NoError(t, err)

	identity, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, []string{"release-managers"}, identity.Roles)
}

func TestAuth_RejectsExpiredToken(t *testing.T) {
	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)
	// Back-date expiry so the minted token is already stale.
	a.ttl = -time.Minute

	token, err := a.Mint("alice", nil)
	require.NoError(t, err)

	_, err = a.Validate(token)
	assert.Error(t, err)
}

func TestAuth_RejectsWrongSecret(t *testing.T) {
	a1, err := New("secret-one", time.Hour)
	require.NoError(t, err)
	a2, err := New("secret-two", time.Hour)
	require.NoError(t, err)

	token, err := a1.Mint("alice", nil)
	require.NoError(t, err)

	_, err = a2.Validate(token)
	assert.Error(t, err)
}

func TestAuth_RequiresSecret(t *testing.T) {
	_, err := New("", time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	var gotIdentity *Identity
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token", func(t *testing.T) {
		token, err := a.Mint("bob", nil)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/runs/run-1/approvals", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, gotIdentity)
		assert.Equal(t, "bob", gotIdentity.Subject)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/runs/run-1/approvals", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/runs/run-1/approvals", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
