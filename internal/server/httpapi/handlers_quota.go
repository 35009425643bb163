package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/identity/internal/server/services"
)

type consumeQuotaRequest struct {
	IdempotencyKey *string `json:"idempotency_key"`
}

type renewQuotaRequest struct {
	Action  string `json:"action"`
	Payload string `json:"payload"`
}

func (s *Server) handleListQuotas(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	quotas, err := s.quotas.List(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]quotaView, 0, len(quotas))
	for _, q := range quotas {
		views = append(views, toQuotaView(q))
	}
	writeJSON(w, http.StatusOK, map[string][]quotaView{"quotas": views})
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	quota, err := s.quotas.Get(r.Context(), claims.Subject, chi.URLParam(r, "quotaType"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaView(quota))
}

func (s *Server) handleConsumeQuota(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req consumeQuotaRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	quota, err := s.quotas.Consume(r.Context(), claims.Subject, chi.URLParam(r, "quotaType"), req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaView(quota))
}

func (s *Server) handleRenewQuota(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req renewQuotaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	quota, err := s.quotas.Renew(r.Context(), claims.Subject, chi.URLParam(r, "quotaType"), services.RenewProof{
		Action:  req.Action,
		Payload: req.Payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaView(quota))
}
