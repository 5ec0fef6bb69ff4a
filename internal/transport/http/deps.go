package http

import (
	"github.com/evote-api/internal/application/otp"
	"github.com/evote-api/internal/facematch"
	"github.com/evote-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/evote-api/internal/infrastructure/jwt"
	s3infra "github.com/evote-api/internal/infrastructure/s3"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	VoterRepo     *dynamo.VoterRepo
	SessionRepo   *dynamo.SessionRepo
	ElectionRepo  *dynamo.ElectionRepo
	CandidateRepo *dynamo.CandidateRepo
	VoteRepo      *dynamo.VoteRepo

	Blobs      *s3infra.Store
	Challenges *otp.Manager
	Matcher    facematch.Matcher

	JWTProvider *jwtinfra.Provider
}
