package httpapi

import (
	"time"

	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/services"
)

// Outward views. Password hashes and token digests never appear here.

type userView struct {
	ID               string     `json:"id"`
	Email            *string    `json:"email"`
	Status           string     `json:"status"`
	IsGuest          bool       `json:"is_guest"`
	DisplayName      *string    `json:"display_name"`
	AvatarURL        *string    `json:"avatar_url"`
	Locale           string     `json:"locale"`
	AnalyticsConsent bool       `json:"analytics_consent"`
	MarketingConsent bool       `json:"marketing_consent"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at"`
}

type authView struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         userView `json:"user"`
}

type sessionView struct {
	ID                string    `json:"id"`
	IPAddress         *string   `json:"ip_address"`
	UserAgent         *string   `json:"user_agent"`
	DeviceFingerprint *string   `json:"device_fingerprint"`
	IssuedAt          time.Time `json:"issued_at"`
	LastUsedAt        time.Time `json:"last_used_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	IsCurrent         bool      `json:"is_current"`
}

type quotaView struct {
	QuotaType    string     `json:"quota_type"`
	MaxAllowed   int        `json:"max_allowed"`
	CurrentUsage int        `json:"current_usage"`
	Remaining    int        `json:"remaining"`
	PeriodType   *string    `json:"period_type"`
	PeriodStart  *time.Time `json:"period_start"`
	PeriodEnd    *time.Time `json:"period_end"`
	CanRenew     bool       `json:"can_renew"`
	RenewAction  *string    `json:"renew_action"`
}

func toUserView(u *models.User) userView {
	return userView{
		ID:               u.ID,
		Email:            u.Email,
		Status:           u.Status,
		IsGuest:          u.IsGuest,
		DisplayName:      u.DisplayName,
		AvatarURL:        u.AvatarURL,
		Locale:           u.Locale,
		AnalyticsConsent: u.AnalyticsConsent,
		MarketingConsent: u.MarketingConsent,
		CreatedAt:        u.CreatedAt,
		LastLoginAt:      u.LastLoginAt,
	}
}

func toAuthView(resp *services.AuthResponse) authView {
	return authView{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		User:         toUserView(resp.User),
	}
}

func toSessionView(s *models.Session, currentSessionID string) sessionView {
	return sessionView{
		ID:                s.ID,
		IPAddress:         s.IPAddress,
		UserAgent:         s.UserAgent,
		DeviceFingerprint: s.DeviceFingerprint,
		IssuedAt:          s.IssuedAt,
		LastUsedAt:        s.LastUsedAt,
		ExpiresAt:         s.ExpiresAt,
		IsCurrent:         s.ID == currentSessionID,
	}
}

func toQuotaView(q *models.UserQuota) quotaView {
	return quotaView{
		QuotaType:    q.QuotaType,
		MaxAllowed:   q.MaxAllowed,
		CurrentUsage: q.CurrentUsage,
		Remaining:    q.Remaining(),
		PeriodType:   q.PeriodType,
		PeriodStart:  q.PeriodStart,
		PeriodEnd:    q.PeriodEnd,
		CanRenew:     q.CanRenew,
		RenewAction:  q.RenewAction,
	}
}
