package election

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evote-api/internal/domain"
	"github.com/evote-api/internal/pkg/id"
)

// ElectionStore is the minimal interface the ledger requires from the
// elections table.
type ElectionStore interface {
	Put(ctx context.Context, e *domain.Election) error
	Get(ctx context.Context, electionID string) (*domain.Election, error)
	ListByStatus(ctx context.Context, status string) ([]domain.Election, error)
	List(ctx context.Context) ([]domain.Election, error)
	Update(ctx context.Context, electionID string, updates map[string]interface{}) error
}

type CandidateStore interface {
	Put(ctx context.Context, c *domain.Candidate) error
	Get(ctx context.Context, candidateID string) (*domain.Candidate, error)
	ListByElection(ctx context.Context, electionID string) ([]domain.Candidate, error)
}

// VoteStore is the append-only vote ledger. Append must reject a duplicate
// (election_id, voter_id) pair with domain.ErrConflict.
type VoteStore interface {
	Append(ctx context.Context, v *domain.Vote) error
	GetByVoter(ctx context.Context, electionID, voterID string) (*domain.Vote, error)
	ListByElection(ctx context.Context, electionID string) ([]domain.Vote, error)
}

type Service interface {
	Active(ctx context.Context) (*domain.Election, error)
	Start(ctx context.Context, name string) (*domain.Election, error)
	Close(ctx context.Context, electionID string) (*domain.Election, error)
	List(ctx context.Context) ([]domain.Election, error)
	AddCandidate(ctx context.Context, name string) (*domain.Candidate, error)
	Candidates(ctx context.Context, electionID string) ([]domain.Candidate, error)
	CastVote(ctx context.Context, electionID, voterID, candidateID string) (*domain.Vote, error)
	VoteOf(ctx context.Context, electionID, voterID string) (*domain.Vote, error)
	Tally(ctx context.Context, electionID string) ([]domain.TallyEntry, error)
	Results(ctx context.Context) (*domain.Results, error)
}

type ServiceDeps struct {
	Elections  ElectionStore
	Candidates CandidateStore
	Votes      VoteStore
}

type service struct {
	elections  ElectionStore
	candidates CandidateStore
	votes      VoteStore

	// startMu serialises the check-then-write in Start so two concurrent
	// admin actions cannot create two simultaneously-active elections.
	// voteMu does the same for CastVote; the vote table's conditional write
	// is the backstop that holds even across processes.
	startMu sync.Mutex
	voteMu  sync.Mutex
}

func NewService(deps ServiceDeps) Service {
	return &service{
		elections:  deps.Elections,
		candidates: deps.Candidates,
		votes:      deps.Votes,
	}
}

// Active returns the active election, or ErrNotFound when none is running.
// At most one row should ever be active; if that invariant is violated the
// most recently started election wins and the ambiguity is logged.
func (s *service) Active(ctx context.Context) (*domain.Election, error) {
	active, err := s.elections.ListByStatus(ctx, domain.ElectionActive)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no active election: %w", domain.ErrNotFound)
	}
	if len(active) > 1 {
		slog.Warn("multiple active elections found, using most recently started", "count", len(active))
		sort.Slice(active, func(i, j int) bool {
			return active[i].StartedAt.After(active[j].StartedAt)
		})
	}
	return &active[0], nil
}

func (s *service) Start(ctx context.Context, name string) (*domain.Election, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	_, err := s.Active(ctx)
	if err == nil {
		return nil, fmt.Errorf("an election is already active: %w", domain.ErrConflict)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Election " + now.Format("2006-01-02")
	}
	e := &domain.Election{
		ElectionID: id.New(),
		Name:       name,
		Status:     domain.ElectionActive,
		CreatedAt:  now,
		StartedAt:  now,
	}
	if err := s.elections.Put(ctx, e); err != nil {
		return nil, err
	}
	slog.Info("election started", "election_id", e.ElectionID, "name", e.Name)
	return e, nil
}

// Close transitions active -> closed. Closed is terminal.
func (s *service) Close(ctx context.Context, electionID string) (*domain.Election, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ElectionActive {
		return nil, fmt.Errorf("election is not active: %w", domain.ErrBadRequest)
	}

	now := time.Now().UTC()
	if err := s.elections.Update(ctx, electionID, map[string]interface{}{
		"status":   domain.ElectionClosed,
		"ended_at": now.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}
	e.Status = domain.ElectionClosed
	e.EndedAt = &now
	slog.Info("election closed", "election_id", e.ElectionID, "name", e.Name)
	return e, nil
}

func (s *service) List(ctx context.Context) ([]domain.Election, error) {
	return s.elections.List(ctx)
}

// AddCandidate registers a candidate on the currently active election.
func (s *service) AddCandidate(ctx context.Context, name string) (*domain.Candidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("candidate name is required: %w", domain.ErrBadRequest)
	}
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	c := &domain.Candidate{
		CandidateID: id.New(),
		ElectionID:  active.ElectionID,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.candidates.Put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) Candidates(ctx context.Context, electionID string) ([]domain.Candidate, error) {
	return s.candidates.ListByElection(ctx, electionID)
}

// CastVote appends a vote for voterID in the active election. An empty
// electionID means "the active election"; a non-empty one must match it.
// The check-then-append runs under voteMu, and the store's uniqueness
// constraint turns any remaining race into ErrConflict.
func (s *service) CastVote(ctx context.Context, electionID, voterID, candidateID string) (*domain.Vote, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	if electionID != "" && electionID != active.ElectionID {
		return nil, fmt.Errorf("election is not active: %w", domain.ErrBadRequest)
	}

	c, err := s.candidates.Get(ctx, candidateID)
	if err != nil || c.ElectionID != active.ElectionID {
		return nil, fmt.Errorf("invalid candidate selection: %w", domain.ErrBadRequest)
	}

	s.voteMu.Lock()
	defer s.voteMu.Unlock()

	if _, err := s.votes.GetByVoter(ctx, active.ElectionID, voterID); err == nil {
		return nil, fmt.Errorf("already voted in this election: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	v := &domain.Vote{
		VoteID:      id.New(),
		ElectionID:  active.ElectionID,
		VoterID:     voterID,
		CandidateID: candidateID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.votes.Append(ctx, v); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("already voted in this election: %w", domain.ErrConflict)
		}
		return nil, err
	}
	slog.Info("vote recorded", "election_id", v.ElectionID, "voter_id", v.VoterID)
	return v, nil
}

func (s *service) VoteOf(ctx context.Context, electionID, voterID string) (*domain.Vote, error) {
	return s.votes.GetByVoter(ctx, electionID, voterID)
}

// Tally counts votes per candidate, sorted by count descending. The sort is
// stable over candidate creation order, so counts are invariant to the order
// vote rows happen to be read in.
func (s *service) Tally(ctx context.Context, electionID string) ([]domain.TallyEntry, error) {
	candidates, err := s.candidates.ListByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	votes, err := s.votes.ListByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(candidates))
	for _, v := range votes {
		counts[v.CandidateID]++
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	entries := make([]domain.TallyEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, domain.TallyEntry{
			CandidateID: c.CandidateID,
			Name:        c.Name,
			Votes:       counts[c.CandidateID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Votes > entries[j].Votes
	})
	return entries, nil
}

// Results summarises the most recently closed election: winner, margin over
// the runner-up, and win percentage rounded to two decimals.
func (s *service) Results(ctx context.Context) (*domain.Results, error) {
	closed, err := s.elections.ListByStatus(ctx, domain.ElectionClosed)
	if err != nil {
		return nil, err
	}
	if len(closed) == 0 {
		return nil, fmt.Errorf("no results available yet: %w", domain.ErrNotFound)
	}
	sort.Slice(closed, func(i, j int) bool {
		var ti, tj time.Time
		if closed[i].EndedAt != nil {
			ti = *closed[i].EndedAt
		}
		if closed[j].EndedAt != nil {
			tj = *closed[j].EndedAt
		}
		return ti.After(tj)
	})
	latest := closed[0]

	tally, err := s.Tally(ctx, latest.ElectionID)
	if err != nil {
		return nil, err
	}

	res := &domain.Results{Election: &latest, Tally: tally}
	for _, e := range tally {
		res.TotalVotes += e.Votes
	}
	if len(tally) > 0 {
		winner := tally[0]
		res.Winner = &winner
		runnerUpVotes := 0
		if len(tally) > 1 {
			runnerUpVotes = tally[1].Votes
		}
		res.Margin = winner.Votes - runnerUpVotes
		if res.TotalVotes > 0 {
			res.WinPercentage = math.Round(float64(winner.Votes)/float64(res.TotalVotes)*100*100) / 100
		}
	}
	return res, nil
}
