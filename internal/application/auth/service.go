package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/evote-api/internal/domain"
	"github.com/evote-api/internal/facematch"
	s3infra "github.com/evote-api/internal/infrastructure/s3"
	"github.com/evote-api/internal/pkg/id"
	"github.com/evote-api/internal/pkg/imaging"
	pkgtoken "github.com/evote-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// VoterStore is the minimal interface the orchestrator requires from the
// voters table.
type VoterStore interface {
	Put(ctx context.Context, v *domain.Voter) error
	Get(ctx context.Context, voterID string) (*domain.Voter, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Voter, error)
	List(ctx context.Context) ([]domain.Voter, error)
}

type SessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	GetPendingByPhone(ctx context.Context, phone string) (*domain.Session, error)
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
	Disable(ctx context.Context, sessionID string) error
}

// BlobStore holds embeddings and portraits as opaque refs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// ChallengeManager is the OTP challenge table handle.
type ChallengeManager interface {
	Issue(principal, purpose string, payload *domain.Voter) (*domain.ChallengeHandle, error)
	Deliver(ctx context.Context, principal string)
	Verify(principal, submitted string) (purpose string, payload *domain.Voter, err error)
}

type TokenSigner interface {
	Sign(voterID, role, sessionID string) (string, error)
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.ChallengeHandle, error)
	Login(ctx context.Context, phone string) (*domain.ChallengeHandle, error)
	ConfirmOTP(ctx context.Context, phone, code string) (*domain.SessionResult, error)
	ConfirmFace(ctx context.Context, phone, faceImage string) (*domain.SessionResult, error)
	Logout(ctx context.Context, sessionID string) error
	AdminLogin(ctx context.Context, username, password string) (*domain.SessionResult, error)
	Voter(ctx context.Context, voterID string) (*domain.Voter, error)
	ListVoters(ctx context.Context) ([]domain.Voter, error)
	Portrait(ctx context.Context, voterID string) (data []byte, contentType string, err error)
}

type ServiceDeps struct {
	Voters     VoterStore
	Sessions   SessionStore
	Blobs      BlobStore
	Challenges ChallengeManager
	Matcher    facematch.Matcher
	Signer     TokenSigner

	FaceThreshold  float64
	FacePendingTTL time.Duration

	AdminUsername     string
	AdminPasswordHash string
}

type service struct {
	voters     VoterStore
	sessions   SessionStore
	blobs      BlobStore
	challenges ChallengeManager
	matcher    facematch.Matcher
	signer     TokenSigner

	threshold      float64
	facePendingTTL time.Duration

	adminUsername     string
	adminPasswordHash string
}

func NewService(deps ServiceDeps) Service {
	threshold := deps.FaceThreshold
	if threshold <= 0 {
		threshold = facematch.DefaultThreshold
	}
	ttl := deps.FacePendingTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &service{
		voters:            deps.Voters,
		sessions:          deps.Sessions,
		blobs:             deps.Blobs,
		challenges:        deps.Challenges,
		matcher:           deps.Matcher,
		signer:            deps.Signer,
		threshold:         threshold,
		facePendingTTL:    ttl,
		adminUsername:     deps.AdminUsername,
		adminPasswordHash: deps.AdminPasswordHash,
	}
}

// Register runs the capture step of enrollment. The face must encode before
// anything else happens: a biometric failure creates no challenge. The
// embedding and portrait blobs are stored now, but the voter row itself
// rides on the challenge payload and is only committed when the OTP
// verifies.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.ChallengeHandle, error) {
	if _, err := s.voters.GetByPhone(ctx, req.Phone); err == nil {
		return nil, fmt.Errorf("phone already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	img, err := imaging.DecodeDataURL(req.FaceImage)
	if err != nil {
		return nil, err
	}
	embedding, err := s.matcher.Enroll(img)
	if err != nil {
		return nil, fmt.Errorf("could not encode face: %w", domain.ErrBiometric)
	}

	voterID := id.New()
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	embeddingRef, err := s.blobs.Put(ctx, "embeddings/"+voterID+".json", embJSON, "application/json")
	if err != nil {
		return nil, err
	}
	portraitPNG, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	portraitRef, err := s.blobs.Put(ctx, "portraits/"+voterID+".png", portraitPNG, "image/png")
	if err != nil {
		return nil, err
	}

	pending := &domain.Voter{
		VoterID:      voterID,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		EmbeddingRef: embeddingRef,
		PortraitRef:  portraitRef,
	}
	handle, err := s.challenges.Issue(req.Phone, domain.PurposeEnroll, pending)
	if err != nil {
		return nil, err
	}
	s.challenges.Deliver(ctx, req.Phone)
	return handle, nil
}

// Login starts the authenticate flow. The phone must already be enrolled.
func (s *service) Login(ctx context.Context, phone string) (*domain.ChallengeHandle, error) {
	if _, err := s.voters.GetByPhone(ctx, phone); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("phone not registered: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	handle, err := s.challenges.Issue(phone, domain.PurposeAuthenticate, nil)
	if err != nil {
		return nil, err
	}
	s.challenges.Deliver(ctx, phone)
	return handle, nil
}

// ConfirmOTP consumes the pending challenge. For enroll it commits the voter
// row — this is the atomicity boundary; a face capture alone never creates
// an identity. For authenticate it opens a face-pending session.
func (s *service) ConfirmOTP(ctx context.Context, phone, code string) (*domain.SessionResult, error) {
	purpose, payload, err := s.challenges.Verify(phone, code)
	if err != nil {
		return nil, err
	}

	switch purpose {
	case domain.PurposeEnroll:
		if payload == nil {
			return nil, fmt.Errorf("challenge carries no pending voter: %w", domain.ErrBadRequest)
		}
		// Defensive re-check: the phone may have been registered between
		// capture and confirmation.
		if _, err := s.voters.GetByPhone(ctx, phone); err == nil {
			return nil, fmt.Errorf("phone already registered: %w", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		payload.EnrolledAt = time.Now().UTC()
		if err := s.voters.Put(ctx, payload); err != nil {
			return nil, err
		}
		slog.Info("voter enrolled", "voter_id", payload.VoterID)
		return s.openSession(ctx, payload, domain.SessionAuthenticated)

	case domain.PurposeAuthenticate:
		voter, err := s.voters.GetByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		return s.openSession(ctx, voter, domain.SessionFacePending)

	default:
		return nil, fmt.Errorf("unknown challenge purpose %q: %w", purpose, domain.ErrBadRequest)
	}
}

// ConfirmFace finalises a login: the probe capture must match the stored
// reference embedding. A non-match leaves the session face-pending so the
// voter can recapture; only the OTP was single-use.
func (s *service) ConfirmFace(ctx context.Context, phone, faceImage string) (*domain.SessionResult, error) {
	sess, err := s.sessions.GetPendingByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no login in progress: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if time.Since(sess.UpdatedAt) > s.facePendingTTL {
		if err := s.sessions.Disable(ctx, sess.SessionID); err != nil {
			slog.Warn("failed to disable stale session", "session_id", sess.SessionID, "err", err)
		}
		return nil, fmt.Errorf("login attempt expired, request a new code: %w", domain.ErrExpired)
	}

	img, err := imaging.DecodeDataURL(faceImage)
	if err != nil {
		return nil, err
	}
	probe, err := s.matcher.Enroll(img)
	if err != nil {
		return nil, fmt.Errorf("could not encode face: %w", domain.ErrBiometric)
	}

	voter, err := s.voters.Get(ctx, sess.VoterID)
	if err != nil {
		return nil, err
	}
	refBytes, err := s.blobs.Get(ctx, voter.EmbeddingRef)
	if err != nil {
		return nil, fmt.Errorf("stored face embedding missing: %w", err)
	}
	var ref facematch.Embedding
	if err := json.Unmarshal(refBytes, &ref); err != nil {
		return nil, fmt.Errorf("corrupt stored embedding: %w", err)
	}

	match, distance, err := s.matcher.Verify(ref, probe, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("compare embeddings: %w", domain.ErrBiometric)
	}
	if !match {
		return nil, fmt.Errorf("face not recognized (distance=%.3f): %w", distance, domain.ErrBiometric)
	}

	now := time.Now().UTC()
	if err := s.sessions.Update(ctx, sess.SessionID, map[string]interface{}{
		"state":      domain.SessionAuthenticated,
		"updated_at": now.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}
	sess.State = domain.SessionAuthenticated
	sess.UpdatedAt = now
	sess.Voter = voter

	bearer, err := s.signer.Sign(voter.VoterID, domain.RoleVoter, sess.SessionID)
	if err != nil {
		return nil, err
	}
	slog.Info("face verified", "voter_id", voter.VoterID, "distance", distance)
	return &domain.SessionResult{State: sess.State, Bearer: bearer, Session: sess}, nil
}

// Logout clears the session back to anonymous.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Disable(ctx, sessionID)
}

// AdminLogin bypasses OTP and biometrics: a plain credential check against
// configured values. Refused outright when the deployment carries no admin
// credentials — there are no built-in defaults.
func (s *service) AdminLogin(ctx context.Context, username, password string) (*domain.SessionResult, error) {
	if s.adminUsername == "" || s.adminPasswordHash == "" {
		return nil, fmt.Errorf("admin access not configured: %w", domain.ErrForbidden)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password))
	if !userOK || passErr != nil {
		return nil, fmt.Errorf("invalid admin credentials: %w", domain.ErrUnauthorized)
	}
	bearer, err := s.signer.Sign("", domain.RoleAdmin, "")
	if err != nil {
		return nil, err
	}
	slog.Info("admin logged in", "username", username)
	return &domain.SessionResult{State: domain.SessionAuthenticated, Bearer: bearer}, nil
}

// Voter returns the enrolled identity, applying the legacy portrait rule:
// a row persisted without a portrait ref derives one from the embedding
// ref's naming convention, verified against the blob store before being
// reported.
func (s *service) Voter(ctx context.Context, voterID string) (*domain.Voter, error) {
	v, err := s.voters.Get(ctx, voterID)
	if err != nil {
		return nil, err
	}
	s.fillPortraitRef(ctx, v)
	return v, nil
}

func (s *service) ListVoters(ctx context.Context) ([]domain.Voter, error) {
	voters, err := s.voters.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range voters {
		s.fillPortraitRef(ctx, &voters[i])
	}
	return voters, nil
}

// Portrait serves the stored face image for a voter.
func (s *service) Portrait(ctx context.Context, voterID string) ([]byte, string, error) {
	v, err := s.Voter(ctx, voterID)
	if err != nil {
		return nil, "", err
	}
	if v.PortraitRef == "" {
		return nil, "", fmt.Errorf("no portrait on file: %w", domain.ErrNotFound)
	}
	data, err := s.blobs.Get(ctx, v.PortraitRef)
	if err != nil {
		return nil, "", err
	}
	return data, s3infra.ContentTypeForKey(v.PortraitRef), nil
}

func (s *service) fillPortraitRef(ctx context.Context, v *domain.Voter) {
	if v.PortraitRef != "" || v.EmbeddingRef == "" {
		return
	}
	derived := derivePortraitRef(v.EmbeddingRef)
	ok, err := s.blobs.Exists(ctx, derived)
	if err != nil {
		slog.Warn("portrait existence check failed", "voter_id", v.VoterID, "ref", derived, "err", err)
		return
	}
	if ok {
		v.PortraitRef = derived
	}
}

// derivePortraitRef maps embeddings/<id>.json to portraits/<id>.png.
func derivePortraitRef(embeddingRef string) string {
	base := path.Base(embeddingRef)
	base = strings.TrimSuffix(base, path.Ext(base))
	return "portraits/" + base + ".png"
}

func (s *service) openSession(ctx context.Context, voter *domain.Voter, state string) (*domain.SessionResult, error) {
	// A new login supersedes any pending one, same as an OTP reissue: at most
	// one enabled face-pending session may exist per phone, so face-confirm
	// can never resume an abandoned attempt.
	if state == domain.SessionFacePending {
		if prior, err := s.sessions.GetPendingByPhone(ctx, voter.Phone); err == nil {
			if err := s.sessions.Disable(ctx, prior.SessionID); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	sessionID, err := pkgtoken.NewSessionToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID: sessionID,
		VoterID:   voter.VoterID,
		Phone:     voter.Phone,
		State:     state,
		Enable:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	sess.Voter = voter

	result := &domain.SessionResult{State: state, Session: sess}
	if state == domain.SessionAuthenticated {
		bearer, err := s.signer.Sign(voter.VoterID, domain.RoleVoter, sessionID)
		if err != nil {
			return nil, err
		}
		result.Bearer = bearer
	}
	return result, nil
}
