package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/evote-api/internal/domain"
)

const (
	// DefaultTTL matches the reference behavior: codes live for 5 minutes.
	DefaultTTL = 5 * time.Minute

	shardCount = 16
)

// SMSSender delivers codes to principals. Delivery failure is never fatal to
// verification; the manager falls back to a diagnostic log line.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Manager owns the process-wide challenge table: one pending challenge per
// principal with expiry and purpose. The table is sharded by principal hash
// so concurrent operations on different phones do not contend on one lock.
type Manager struct {
	shards [shardCount]shard
	ttl    time.Duration
	sender SMSSender
	now    func() time.Time
}

type shard struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
}

type Option func(*Manager)

// WithTTL overrides the challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock overrides the time source. Tests use this to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(sender SMSSender, opts ...Option) *Manager {
	m := &Manager{ttl: DefaultTTL, sender: sender, now: time.Now}
	for i := range m.shards {
		m.shards[i].challenges = make(map[string]*domain.Challenge)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) shardFor(principal string) *shard {
	h := fnv.New32a()
	h.Write([]byte(principal))
	return &m.shards[h.Sum32()%shardCount]
}

// Issue creates a challenge for principal, superseding any pending one.
// A superseded code becomes permanently unusable: only the newest challenge
// object is retained per principal.
func (m *Manager) Issue(principal, purpose string, payload *domain.Voter) (*domain.ChallengeHandle, error) {
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}
	c := &domain.Challenge{
		Principal: principal,
		Code:      code,
		Purpose:   purpose,
		Payload:   payload,
		ExpiresAt: m.now().Add(m.ttl),
	}

	s := m.shardFor(principal)
	s.mu.Lock()
	s.challenges[principal] = c
	s.mu.Unlock()

	return &domain.ChallengeHandle{
		Principal: principal,
		Purpose:   purpose,
		ExpiresAt: c.ExpiresAt,
	}, nil
}

// Deliver hands the pending code for principal to the SMS transport. On
// transport failure the code is surfaced through the log instead, so an
// operator can always read it in non-production settings.
func (m *Manager) Deliver(ctx context.Context, principal string) {
	s := m.shardFor(principal)
	s.mu.Lock()
	c, ok := s.challenges[principal]
	s.mu.Unlock()
	if !ok {
		return
	}

	msg := "Your E-Voting verification code is: " + c.Code
	if m.sender != nil {
		err := m.sender.SendSMS(ctx, principal, msg)
		if err == nil {
			return
		}
		slog.Warn("sms delivery failed, falling back to log", "principal", principal, "err", err)
	}
	slog.Info("otp fallback delivery", "principal", principal, "code", c.Code)
}

// Verify checks submitted against the pending challenge for principal.
//
//   - no pending challenge: ErrNotFound
//   - past expiry: ErrExpired, and the challenge is deleted as a side effect
//   - wrong code: ErrUnauthorized, challenge left intact so the principal can
//     retry until expiry
//   - match: challenge deleted (single use), purpose and payload returned
func (m *Manager) Verify(principal, submitted string) (purpose string, payload *domain.Voter, err error) {
	s := m.shardFor(principal)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[principal]
	if !ok {
		return "", nil, fmt.Errorf("no pending challenge: %w", domain.ErrNotFound)
	}
	if m.now().After(c.ExpiresAt) {
		delete(s.challenges, principal)
		return "", nil, fmt.Errorf("challenge expired: %w", domain.ErrExpired)
	}
	if c.Code != submitted {
		return "", nil, fmt.Errorf("incorrect code: %w", domain.ErrUnauthorized)
	}
	delete(s.challenges, principal)
	return c.Purpose, c.Payload, nil
}

// generateCode returns a 6-digit code from a secure random source. The
// reference behavior used 4 digits; the space is widened here on purpose.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
