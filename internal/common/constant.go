package common

// Transport metadata keys the thin HTTP layer extracts for the core.
const (
	// AccessTokenCookieName is the HttpOnly cookie that may carry the
	// access token instead of the Authorization header.
	AccessTokenCookieName = "access_token"

	// DeviceFingerprintHeader carries the optional client device
	// fingerprint used for guest capping and anomaly detection.
	DeviceFingerprintHeader = "X-Device-Fingerprint"
)
