package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kuapa/kuapa/backend/internal/auth"
	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// AuthHandler exposes the cached session. Credentials are checked elsewhere; the
// rendering layer hands over the profile it signed in with.
type AuthHandler struct {
	session *auth.Store
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(session *auth.Store) *AuthHandler {
	return &AuthHandler{session: session}
}

// Register mounts the session routes on r.
func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/auth", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/user", h.SetUser).Methods(http.MethodPut)
	r.HandleFunc("/api/auth/user", h.UpdateUser).Methods(http.MethodPatch)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)
}

type sessionResponse struct {
	User            *models.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

func (h *AuthHandler) snapshot() sessionResponse {
	st := h.session.State()
	return sessionResponse{User: st.User, IsAuthenticated: st.IsAuthenticated}
}

// GetSession handles GET /api/auth
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// SetUser handles PUT /api/auth/user
func (h *AuthHandler) SetUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeBody(r, &user); err != nil {
		writeError(w, err)
		return
	}
	if user.ID == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "user id is required"))
		return
	}
	h.session.SetUser(user)
	writeJSON(w, http.StatusOK, h.snapshot())
}

type profilePatch struct {
	Name              *string            `json:"name"`
	Phone             *string            `json:"phone"`
	FarmName          *string            `json:"farmName"`
	Location          *string            `json:"location"`
	CropTypes         *[]models.CropType `json:"cropTypes"`
	PreferredLanguage *string            `json:"preferredLanguage"`
}

// UpdateUser handles PATCH /api/auth/user
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.session.CheckAuth() {
		writeError(w, apperrors.New(apperrors.ErrNotFound, "no signed-in user"))
		return
	}
	var patch profilePatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	h.session.UpdateUser(func(u *models.User) {
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = *v
			}
		}
		set(&u.Name, patch.Name)
		set(&u.Phone, patch.Phone)
		set(&u.FarmName, patch.FarmName)
		set(&u.Location, patch.Location)
		set(&u.PreferredLanguage, patch.PreferredLanguage)
		if patch.CropTypes != nil {
			u.CropTypes = *patch.CropTypes
		}
	})
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	w.WriteHeader(http.StatusNoContent)
}
