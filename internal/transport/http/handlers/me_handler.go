package handlers

import (
	"net/http"

	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
	httperrors "github.com/abelleisle/simple-health/internal/transport/http/errors"
)

type MeHandler struct{}

func NewMeHandler() *MeHandler {
	return &MeHandler{}
}

// Get returns the identity resolved for this request. Routed behind
// RequireAuth, so an anonymous caller never reaches it.
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok || !identity.LoggedIn() {
		httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
			Code:    "UNAUTHORIZED",
			Message: "authentication required",
		})
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]any{
		"user_id":  identity.UserID,
		"email":    identity.Email,
		"is_admin": identity.IsAdmin,
	})
}
