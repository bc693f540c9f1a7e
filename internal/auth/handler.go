package auth

import (
	"net/http"

	"github.com/storefront/service/internal/response"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct{}

// NewHandler creates a new auth Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Me godoc
//
//	@Summary		Current identity
//	@Description	Returns the verified identity and role of the caller.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=Identity}
//	@Failure		401	{object}	response.Envelope
//	@Router			/auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	response.OK(w, id)
}
