package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/identity/internal/server/services"
)

type adminUpdateStatusRequest struct {
	Status string `json:"status"`
}

type adminUpdateQuotaLimitRequest struct {
	MaxAllowed int `json:"max_allowed"`
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	req := services.ListUsersRequest{}

	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		req.Status = &status
	}
	if raw := q.Get("is_guest"); raw != "" {
		isGuest := raw == "true" || raw == "1"
		req.IsGuest = &isGuest
	}
	if search := q.Get("search"); search != "" {
		req.Search = &search
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.ParseInt(raw, 10, 64); err == nil {
			req.Limit = limit
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err := strconv.ParseInt(raw, 10, 64); err == nil {
			req.Offset = offset
		}
	}

	users, total, err := s.users.ListUsers(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, toUserView(user))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": views,
		"total": total,
	})
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleAdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.users.UpdateStatus(r.Context(), chi.URLParam(r, "userID"), req.Status, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleAdminUpdateQuotaLimit(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateQuotaLimitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	quota, err := s.quotas.UpdateLimit(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "quotaType"), req.MaxAllowed)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaView(quota))
}

func (s *Server) handleAdminResetQuota(w http.ResponseWriter, r *http.Request) {
	quota, err := s.quotas.Reset(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "quotaType"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaView(quota))
}
