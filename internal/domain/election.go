package domain

import "time"

// Election lifecycle. Closed is terminal: elections are never reopened or deleted.
const (
	ElectionActive = "active"
	ElectionClosed = "closed"
)

type Election struct {
	ElectionID string     `json:"id" dynamodbav:"election_id"`
	Name       string     `json:"name" dynamodbav:"name"`
	Status     string     `json:"status" dynamodbav:"status"`
	CreatedAt  time.Time  `json:"created_at" dynamodbav:"created_at"`
	StartedAt  time.Time  `json:"started_at" dynamodbav:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" dynamodbav:"ended_at"`
}

// Candidate belongs to exactly one election and can only be created while
// that election is active.
type Candidate struct {
	CandidateID string    `json:"id" dynamodbav:"candidate_id"`
	ElectionID  string    `json:"election_id" dynamodbav:"election_id"`
	Name        string    `json:"name" dynamodbav:"name"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Vote is append-only. The (election_id, voter_id) pair is the table's
// composite primary key, which is what makes double voting a rejected write
// rather than a lost invariant.
type Vote struct {
	VoteID      string    `json:"id" dynamodbav:"vote_id"`
	ElectionID  string    `json:"election_id" dynamodbav:"election_id"`
	VoterID     string    `json:"voter_id" dynamodbav:"voter_id"`
	CandidateID string    `json:"candidate_id" dynamodbav:"candidate_id"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

type StartElectionRequest struct {
	Name string `json:"name"`
}

type AddCandidateRequest struct {
	Name string `json:"name" validate:"required"`
}

type CastVoteRequest struct {
	CandidateID string `json:"candidate_id" validate:"required"`
}

// TallyEntry is one row of an election tally, ordered by count descending
// with ties broken by candidate creation order.
type TallyEntry struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Votes       int    `json:"votes"`
}

// Results summarises the most recently closed election.
type Results struct {
	Election      *Election    `json:"election"`
	Tally         []TallyEntry `json:"tally"`
	Winner        *TallyEntry  `json:"winner,omitempty"`
	Margin        int          `json:"margin"`
	TotalVotes    int          `json:"total_votes"`
	WinPercentage float64      `json:"win_percentage"`
}
