// Package password provides bcrypt credential hashing off the request
// goroutine plus the password strength policy applied at registration and
// password change.
package password

import (
	"context"
	"fmt"
	"runtime"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/quizforge/identity/internal/common"
)

// MinCost is the weakest bcrypt cost the hasher will accept. Configured
// costs below it are raised silently.
const MinCost = 10

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// Hasher runs bcrypt on a bounded worker pool sized to the CPU count, so a
// burst of registrations cannot saturate every core and starve request
// handling. Hash and Compare block until a slot frees or ctx is done.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

func NewHasher(cost int) *Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash derives a bcrypt hash of password. Failures are reported as the
// opaque ErrorHashing so no bcrypt detail reaches callers or clients.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", common.ErrorHashing
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", common.ErrorHashing
	}
	return string(hash), nil
}

// Compare checks password against a stored hash. A mismatch yields
// ErrorInvalidCredentials; a malformed hash yields ErrorHashing.
func (h *Hasher) Compare(ctx context.Context, hash, password string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return common.ErrorHashing
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch err {
	case nil:
		return nil
	case bcrypt.ErrMismatchedHashAndPassword:
		return common.ErrorInvalidCredentials
	default:
		return common.ErrorHashing
	}
}

// ValidateStrength enforces the password policy: 8 to 128 characters with
// at least one lowercase letter, one uppercase letter, and one digit.
func ValidateStrength(password string) error {
	n := len([]rune(password))
	if n < minPasswordLength {
		return fmt.Errorf("%w: password must be at least 8 characters", common.ErrorValidation)
	}
	if n > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most 128 characters", common.ErrorValidation)
	}

	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower {
		return fmt.Errorf("%w: password must contain a lowercase letter", common.ErrorValidation)
	}
	if !upper {
		return fmt.Errorf("%w: password must contain an uppercase letter", common.ErrorValidation)
	}
	if !digit {
		return fmt.Errorf("%w: password must contain a digit", common.ErrorValidation)
	}
	return nil
}
