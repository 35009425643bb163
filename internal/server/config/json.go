package config

import (
	"encoding/json"
	"os"

	"github.com/quizforge/identity/internal/flagx"
	"github.com/quizforge/identity/internal/timex"
)

// JsonConfig is the JSON-file shape of Config. Durations use timex.Duration
// so the file can carry either "15m" strings or integer nanoseconds. Only
// non-zero values are copied onto the runtime Config.
type JsonConfig struct {
	Addr        string `json:"address"`
	DatabaseDSN string `json:"database_dsn"`

	AccessTokenSecret  string          `json:"jwt_access_secret"`
	RefreshTokenSecret string          `json:"jwt_refresh_secret"`
	AccessTokenTTL     *timex.Duration `json:"jwt_access_ttl"`
	RefreshTokenTTL    *timex.Duration `json:"jwt_refresh_ttl"`

	BcryptCost int `json:"bcrypt_cost"`

	LoginIPWindowMinutes       int `json:"login_ip_window_minutes"`
	LoginIPMaxFailures         int `json:"login_ip_max_failures"`
	CaptchaWindowMinutes       int `json:"captcha_window_minutes"`
	CaptchaFailureThreshold    int `json:"captcha_failure_threshold"`
	LockoutWindowMinutes       int `json:"lockout_window_minutes"`
	LockoutFailureThreshold    int `json:"lockout_failure_threshold"`
	DeviceFingerprintMaxGuests int `json:"device_fingerprint_max_guests"`

	HCaptchaEnabled *bool  `json:"hcaptcha_enabled"`
	HCaptchaSecret  string `json:"hcaptcha_secret"`

	GuestQuizQuota      int   `json:"guest_quiz_quota"`
	GuestQuotaRenewable *bool `json:"guest_quota_renewable"`

	RedisAddr         string `json:"redis_addr"`
	RequestsPerMinute int    `json:"requests_per_minute"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	AttemptRetentionDays     int `json:"attempt_retention_days"`
	SessionRetentionDays     int `json:"session_retention_days"`
	ConsumptionRetentionDays int `json:"consumption_retention_days"`
	AuditRetentionDays       int `json:"audit_retention_days"`
}

// parseJson overlays values from the JSON file named by -c/-config onto the
// provided Config. Missing file flag means no overlay. Read or parse
// failures panic, matching startup-fatal semantics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setString(&config.Addr, c.Addr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	if c.AccessTokenTTL != nil {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.RefreshTokenTTL != nil {
		config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	}
	setInt(&config.BcryptCost, c.BcryptCost)
	setInt(&config.LoginIPWindowMinutes, c.LoginIPWindowMinutes)
	setInt(&config.LoginIPMaxFailures, c.LoginIPMaxFailures)
	setInt(&config.CaptchaWindowMinutes, c.CaptchaWindowMinutes)
	setInt(&config.CaptchaFailureThreshold, c.CaptchaFailureThreshold)
	setInt(&config.LockoutWindowMinutes, c.LockoutWindowMinutes)
	setInt(&config.LockoutFailureThreshold, c.LockoutFailureThreshold)
	setInt(&config.DeviceFingerprintMaxGuests, c.DeviceFingerprintMaxGuests)
	if c.HCaptchaEnabled != nil {
		config.HCaptchaEnabled = *c.HCaptchaEnabled
	}
	setString(&config.HCaptchaSecret, c.HCaptchaSecret)
	setInt(&config.GuestQuizQuota, c.GuestQuizQuota)
	if c.GuestQuotaRenewable != nil {
		config.GuestQuotaRenewable = *c.GuestQuotaRenewable
	}
	setString(&config.RedisAddr, c.RedisAddr)
	setInt(&config.RequestsPerMinute, c.RequestsPerMinute)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setInt(&config.AttemptRetentionDays, c.AttemptRetentionDays)
	setInt(&config.SessionRetentionDays, c.SessionRetentionDays)
	setInt(&config.ConsumptionRetentionDays, c.ConsumptionRetentionDays)
	setInt(&config.AuditRetentionDays, c.AuditRetentionDays)
}
