package httpapi

import (
	"net/http"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/server/services"
)

type registerRequest struct {
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	DisplayName      *string `json:"display_name"`
	Locale           *string `json:"locale"`
	AnalyticsConsent *bool   `json:"analytics_consent"`
	MarketingConsent *bool   `json:"marketing_consent"`
}

type loginRequest struct {
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	CaptchaResponse *string `json:"captcha_response"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type createGuestRequest struct {
	Locale *string `json:"locale"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.auth.Register(r.Context(), services.RegisterRequest{
		Email:            req.Email,
		Password:         req.Password,
		DisplayName:      req.DisplayName,
		Locale:           req.Locale,
		AnalyticsConsent: req.AnalyticsConsent,
		MarketingConsent: req.MarketingConsent,
	}, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthView(resp))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.auth.Login(r.Context(), services.LoginRequest{
		Email:           req.Email,
		Password:        req.Password,
		CaptchaResponse: req.CaptchaResponse,
	}, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthView(resp))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, common.ErrorInvalidToken)
		return
	}

	resp, err := s.auth.RefreshToken(r.Context(), req.RefreshToken, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthView(resp))
}

func (s *Server) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	var req createGuestRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	resp, err := s.auth.CreateGuest(r.Context(), services.CreateGuestRequest{Locale: req.Locale}, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthView(resp))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), extractToken(r), clientInfo(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	count, err := s.auth.LogoutAll(r.Context(), claims.Subject, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"sessions_revoked": count})
}
