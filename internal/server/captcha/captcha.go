// Package captcha verifies challenge-response proofs with an external
// provider. The abuse guard demands a proof once an account accumulates
// enough recent failures.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quizforge/identity/internal/common"
)

// DefaultVerifyURL is the hCaptcha verification endpoint.
const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

// Verifier checks a client-supplied captcha token.
type Verifier interface {
	// Verify returns nil when token is a valid proof, ErrorInvalidCaptcha
	// when the provider rejects it, and ErrorInternal when the provider
	// cannot be reached.
	Verify(ctx context.Context, token string) error
}

// HCaptchaVerifier verifies tokens against the hCaptcha siteverify API.
// With Enabled false every token passes, which keeps local and test
// environments free of a provider dependency.
type HCaptchaVerifier struct {
	secret    string
	verifyURL string
	enabled   bool
	client    *http.Client
}

func NewHCaptchaVerifier(secret string, enabled bool) *HCaptchaVerifier {
	return &HCaptchaVerifier{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		enabled:   enabled,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithVerifyURL overrides the provider endpoint. Used in tests.
func (v *HCaptchaVerifier) WithVerifyURL(u string) *HCaptchaVerifier {
	v.verifyURL = u
	return v
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *HCaptchaVerifier) Verify(ctx context.Context, token string) error {
	if !v.enabled {
		return nil
	}
	if token == "" {
		return common.ErrorInvalidCaptcha
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("captcha request: %w", common.ErrorInternal)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha provider unreachable: %w", common.ErrorInternal)
	}
	defer resp.Body.Close()

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("captcha response decode: %w", common.ErrorInternal)
	}
	if !body.Success {
		return common.ErrorInvalidCaptcha
	}
	return nil
}
