package domain

import "time"

// Challenge purposes. An enroll challenge carries the not-yet-committed voter
// so OTP success is what actually writes the row.
const (
	PurposeEnroll       = "enroll"
	PurposeAuthenticate = "authenticate"
)

// Challenge is a pending OTP record, keyed by the principal's phone number.
// At most one live challenge exists per principal; issuing a new one
// supersedes any prior code.
type Challenge struct {
	Principal string
	Code      string
	Purpose   string
	Payload   *Voter // pending voter for enroll; nil for authenticate
	ExpiresAt time.Time
}

// ChallengeHandle is what callers get back from register/login: enough to
// drive the confirmation step without exposing the code itself.
type ChallengeHandle struct {
	Principal string    `json:"principal"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
}
