package domain

import "time"

// Session states. A login session is created in SessionFacePending after the
// OTP succeeds and becomes SessionAuthenticated once the face match passes.
// Registration sessions start out authenticated.
const (
	SessionFacePending   = "face_pending"
	SessionAuthenticated = "authenticated"
)

const (
	RoleVoter = "voter"
	RoleAdmin = "admin"
)

type Session struct {
	SessionID string    `json:"id" dynamodbav:"session_id"`
	VoterID   string    `json:"voter_id" dynamodbav:"voter_id"`
	Phone     string    `json:"phone" dynamodbav:"phone"`
	State     string    `json:"state" dynamodbav:"state"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
	Voter     *Voter    `json:"voter,omitempty" dynamodbav:"-"`
}

// SessionResult is returned to the web layer after a confirmation step.
// Bearer is empty until the session reaches SessionAuthenticated.
type SessionResult struct {
	State   string   `json:"state"`
	Bearer  string   `json:"bearer,omitempty"`
	Session *Session `json:"session,omitempty"`
}
