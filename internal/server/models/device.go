package models

import "time"

// DeviceFingerprint is a per (user, fingerprint) first/last-seen record,
// upserted on each authenticated use. It backs the guest-per-device cap.
type DeviceFingerprint struct {
	ID          string
	UserID      string
	Fingerprint string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}
