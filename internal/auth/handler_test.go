package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe(t *testing.T) {
	h := NewHandler()

	t.Run("returns identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req = req.WithContext(WithIdentity(req.Context(), &Identity{UserID: "user_1", Email: "a@b.c", Role: RoleAdmin}))
		rec := httptest.NewRecorder()

		h.Me(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Success bool     `json:"success"`
			Data    Identity `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "user_1", body.Data.UserID)
		assert.Equal(t, RoleAdmin, body.Data.Role)
	})

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()

		h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
