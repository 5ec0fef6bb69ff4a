package election

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evote-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes ---
//
// The vote fake mirrors the storage contract exactly: Append is atomic and
// rejects a duplicate (election_id, voter_id) pair with ErrConflict. The
// concurrency tests below lean on that contract the same way the DynamoDB
// conditional write is leaned on in production.

type fakeElectionStore struct {
	mu    sync.Mutex
	items map[string]*domain.Election
}

func newFakeElectionStore() *fakeElectionStore {
	return &fakeElectionStore{items: make(map[string]*domain.Election)}
}

func (f *fakeElectionStore) Put(_ context.Context, e *domain.Election) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.items[e.ElectionID] = &cp
	return nil
}

func (f *fakeElectionStore) Get(_ context.Context, electionID string) (*domain.Election, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[electionID]
	if !ok {
		return nil, fmt.Errorf("election not found: %w", domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (f *fakeElectionStore) ListByStatus(_ context.Context, status string) ([]domain.Election, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Election
	for _, e := range f.items {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeElectionStore) List(_ context.Context) ([]domain.Election, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Election
	for _, e := range f.items {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeElectionStore) Update(_ context.Context, electionID string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[electionID]
	if !ok {
		return fmt.Errorf("election not found: %w", domain.ErrNotFound)
	}
	if s, ok := updates["status"].(string); ok {
		e.Status = s
	}
	if raw, ok := updates["ended_at"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return err
		}
		e.EndedAt = &t
	}
	return nil
}

type fakeCandidateStore struct {
	mu    sync.Mutex
	items map[string]*domain.Candidate
}

func newFakeCandidateStore() *fakeCandidateStore {
	return &fakeCandidateStore{items: make(map[string]*domain.Candidate)}
}

func (f *fakeCandidateStore) Put(_ context.Context, c *domain.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.items[c.CandidateID] = &cp
	return nil
}

func (f *fakeCandidateStore) Get(_ context.Context, candidateID string) (*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[candidateID]
	if !ok {
		return nil, fmt.Errorf("candidate not found: %w", domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCandidateStore) ListByElection(_ context.Context, electionID string) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Candidate
	for _, c := range f.items {
		if c.ElectionID == electionID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeVoteStore struct {
	mu    sync.Mutex
	votes []domain.Vote
	byKey map[string]struct{}
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{byKey: make(map[string]struct{})}
}

func voteKey(electionID, voterID string) string { return electionID + "/" + voterID }

func (f *fakeVoteStore) Append(_ context.Context, v *domain.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := voteKey(v.ElectionID, v.VoterID)
	if _, exists := f.byKey[key]; exists {
		return fmt.Errorf("vote already cast: %w", domain.ErrConflict)
	}
	f.byKey[key] = struct{}{}
	f.votes = append(f.votes, *v)
	return nil
}

func (f *fakeVoteStore) GetByVoter(_ context.Context, electionID, voterID string) (*domain.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.votes {
		if f.votes[i].ElectionID == electionID && f.votes[i].VoterID == voterID {
			cp := f.votes[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("vote not found: %w", domain.ErrNotFound)
}

func (f *fakeVoteStore) ListByElection(_ context.Context, electionID string) ([]domain.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Vote
	for _, v := range f.votes {
		if v.ElectionID == electionID {
			out = append(out, v)
		}
	}
	return out, nil
}

// reverse flips stored row order in place, to prove tally ordering does not
// depend on how rows happen to be read back.
func (f *fakeVoteStore) reverse() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, j := 0, len(f.votes)-1; i < j; i, j = i+1, j-1 {
		f.votes[i], f.votes[j] = f.votes[j], f.votes[i]
	}
}

func newTestService() (Service, *fakeElectionStore, *fakeCandidateStore, *fakeVoteStore) {
	es := newFakeElectionStore()
	cs := newFakeCandidateStore()
	vs := newFakeVoteStore()
	return NewService(ServiceDeps{Elections: es, Candidates: cs, Votes: vs}), es, cs, vs
}

// --- lifecycle ---

func TestStart_CreatesActiveElection(t *testing.T) {
	svc, _, _, _ := newTestService()

	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	assert.Equal(t, "Spring", e.Name)
	assert.Equal(t, domain.ElectionActive, e.Status)
	assert.False(t, e.StartedAt.IsZero())

	active, err := svc.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e.ElectionID, active.ElectionID)
}

func TestStart_DefaultsName(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "  ")
	require.NoError(t, err)
	assert.Contains(t, e.Name, "Election ")
}

func TestStart_SecondWhileActiveFails(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "Fall")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStart_ConcurrentExactlyOneWins(t *testing.T) {
	svc, _, _, _ := newTestService()

	const n = 16
	var started atomic.Int32
	var conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Start(context.Background(), fmt.Sprintf("race-%d", i))
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
}

func TestClose_TransitionsAndIsTerminal(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), e.ElectionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ElectionClosed, closed.Status)
	require.NotNil(t, closed.EndedAt)

	// Closed is terminal.
	_, err = svc.Close(context.Background(), e.ElectionID)
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = svc.Active(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActive_NoneRunning(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Active(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- candidates ---

func TestAddCandidate_RequiresActiveElection(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.AddCandidate(context.Background(), "Alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddCandidate_EmptyName(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)

	_, err = svc.AddCandidate(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestAddCandidate_BindsToActiveElection(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)

	c, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, e.ElectionID, c.ElectionID)
}

// --- voting ---

func TestCastVote_HappyPath(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)

	v, err := svc.CastVote(context.Background(), "", "voterA", c.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, e.ElectionID, v.ElectionID)
	assert.Equal(t, "voterA", v.VoterID)

	got, err := svc.VoteOf(context.Background(), e.ElectionID, "voterA")
	require.NoError(t, err)
	assert.Equal(t, c.CandidateID, got.CandidateID)
}

func TestCastVote_SecondVoteRejected(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c1, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	c2, err := svc.AddCandidate(context.Background(), "Bob")
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), "", "voterA", c1.CandidateID)
	require.NoError(t, err)

	// Switching candidates does not help.
	_, err = svc.CastVote(context.Background(), "", "voterA", c2.CandidateID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCastVote_ConcurrentSameVoterExactlyOneRow(t *testing.T) {
	svc, _, _, vs := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)

	const n = 32
	var succeeded atomic.Int32
	var alreadyVoted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CastVote(context.Background(), "", "voterA", c.CandidateID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrConflict):
				alreadyVoted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(n-1), alreadyVoted.Load())

	rows, err := vs.ListByElection(context.Background(), e.ElectionID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCastVote_CrossElectionCandidateRejected(t *testing.T) {
	svc, _, _, _ := newTestService()

	e1, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	staleCandidate, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), e1.ElectionID)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "Fall")
	require.NoError(t, err)

	// A candidate from the closed election is never a valid selection.
	_, err = svc.CastVote(context.Background(), "", "voterA", staleCandidate.CandidateID)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCastVote_ExplicitElectionMustBeActive(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), "some-other-election", "voterA", c.CandidateID)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCastVote_NoActiveElection(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.CastVote(context.Background(), "", "voterA", "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- tally and results ---

func seedVotes(t *testing.T, svc Service, candidateID string, voters ...string) {
	t.Helper()
	for _, voter := range voters {
		_, err := svc.CastVote(context.Background(), "", voter, candidateID)
		require.NoError(t, err)
	}
}

func TestTally_OrderedByCountThenCreation(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	alice, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	bob, err := svc.AddCandidate(context.Background(), "Bob")
	require.NoError(t, err)
	carol, err := svc.AddCandidate(context.Background(), "Carol")
	require.NoError(t, err)

	seedVotes(t, svc, bob.CandidateID, "v1", "v2", "v3")
	seedVotes(t, svc, alice.CandidateID, "v4")
	seedVotes(t, svc, carol.CandidateID, "v5")

	tally, err := svc.Tally(context.Background(), e.ElectionID)
	require.NoError(t, err)
	require.Len(t, tally, 3)

	// Bob leads; Alice and Carol are tied and fall back to creation order.
	assert.Equal(t, "Bob", tally[0].Name)
	assert.Equal(t, 3, tally[0].Votes)
	assert.Equal(t, "Alice", tally[1].Name)
	assert.Equal(t, "Carol", tally[2].Name)
}

func TestTally_StableUnderRowReordering(t *testing.T) {
	svc, _, _, vs := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	alice, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	bob, err := svc.AddCandidate(context.Background(), "Bob")
	require.NoError(t, err)

	seedVotes(t, svc, alice.CandidateID, "v1", "v2")
	seedVotes(t, svc, bob.CandidateID, "v3", "v4", "v5")

	before, err := svc.Tally(context.Background(), e.ElectionID)
	require.NoError(t, err)

	vs.reverse()

	after, err := svc.Tally(context.Background(), e.ElectionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResults_WinnerMarginAndPercentage(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c1, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	c2, err := svc.AddCandidate(context.Background(), "Bob")
	require.NoError(t, err)

	seedVotes(t, svc, c1.CandidateID, "v1", "v2", "v3", "v4", "v5")
	seedVotes(t, svc, c2.CandidateID, "v6", "v7", "v8")

	_, err = svc.Close(context.Background(), e.ElectionID)
	require.NoError(t, err)

	res, err := svc.Results(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "Alice", res.Winner.Name)
	assert.Equal(t, 5, res.Winner.Votes)
	assert.Equal(t, 2, res.Margin)
	assert.Equal(t, 8, res.TotalVotes)
	assert.Equal(t, 62.5, res.WinPercentage)
}

func TestResults_SingleCandidateFullMargin(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c1, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	seedVotes(t, svc, c1.CandidateID, "v1", "v2")

	_, err = svc.Close(context.Background(), e.ElectionID)
	require.NoError(t, err)

	res, err := svc.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Margin)
	assert.Equal(t, 100.0, res.WinPercentage)
}

func TestResults_ZeroVotes(t *testing.T) {
	svc, _, _, _ := newTestService()
	e, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	_, err = svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), e.ElectionID)
	require.NoError(t, err)

	res, err := svc.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalVotes)
	assert.Equal(t, 0.0, res.WinPercentage)
}

func TestResults_NoClosedElection(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Results(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResults_UsesMostRecentlyClosed(t *testing.T) {
	svc, es, _, _ := newTestService()

	e1, err := svc.Start(context.Background(), "Spring")
	require.NoError(t, err)
	c1, err := svc.AddCandidate(context.Background(), "Alice")
	require.NoError(t, err)
	seedVotes(t, svc, c1.CandidateID, "v1")
	_, err = svc.Close(context.Background(), e1.ElectionID)
	require.NoError(t, err)

	// Push the first close into the past so ordering is unambiguous.
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, es.Update(context.Background(), e1.ElectionID, map[string]interface{}{
		"ended_at": past.Format(time.RFC3339Nano),
	}))

	e2, err := svc.Start(context.Background(), "Fall")
	require.NoError(t, err)
	c2, err := svc.AddCandidate(context.Background(), "Bob")
	require.NoError(t, err)
	seedVotes(t, svc, c2.CandidateID, "v2")
	_, err = svc.Close(context.Background(), e2.ElectionID)
	require.NoError(t, err)

	res, err := svc.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e2.ElectionID, res.Election.ElectionID)
	assert.Equal(t, "Bob", res.Winner.Name)
}
