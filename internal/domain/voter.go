package domain

import "time"

// Voter is an enrolled identity. Rows are written once on successful
// registration confirmation and never mutated or deleted afterwards.
type Voter struct {
	VoterID      string    `json:"id" dynamodbav:"voter_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"`
	Phone        string    `json:"phone" dynamodbav:"phone"`
	EmbeddingRef string    `json:"-" dynamodbav:"embedding_ref"`
	PortraitRef  string    `json:"portrait_ref,omitempty" dynamodbav:"portrait_ref"`
	EnrolledAt   time.Time `json:"enrolled_at" dynamodbav:"enrolled_at"`
}

type RegisterRequest struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"required,e164"`
	FaceImage string `json:"face_image" validate:"required"` // base64 data URL
}

type LoginRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

type ConfirmOTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required,numeric"`
}

type ConfirmFaceRequest struct {
	Phone     string `json:"phone" validate:"required,e164"`
	FaceImage string `json:"face_image" validate:"required"`
}

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
