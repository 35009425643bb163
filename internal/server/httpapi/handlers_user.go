package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/identity/internal/server/services"
)

type updateProfileRequest struct {
	DisplayName      *string `json:"display_name"`
	AvatarURL        *string `json:"avatar_url"`
	Locale           *string `json:"locale"`
	AnalyticsConsent *bool   `json:"analytics_consent"`
	MarketingConsent *bool   `json:"marketing_consent"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	user, err := s.users.GetProfile(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req updateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), claims.Subject, services.UpdateProfileRequest{
		DisplayName:      req.DisplayName,
		AvatarURL:        req.AvatarURL,
		Locale:           req.Locale,
		AnalyticsConsent: req.AnalyticsConsent,
		MarketingConsent: req.MarketingConsent,
	}, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := s.users.DeleteAccount(r.Context(), claims.Subject, clientInfo(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.users.ChangePassword(r.Context(), claims.Subject, services.ChangePasswordRequest{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	sessions, err := s.users.ListSessions(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, toSessionView(session, claims.ID))
	}
	writeJSON(w, http.StatusOK, map[string][]sessionView{"sessions": views})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.users.RevokeSession(r.Context(), claims.Subject, sessionID, clientInfo(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
