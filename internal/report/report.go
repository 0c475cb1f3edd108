// Package report aggregates directory, ledger and fraud data into the
// turnout dashboard served to election operators.
package report

import (
	"context"
	"time"

	"github.com/votegate/votegate/internal/directory"
	"github.com/votegate/votegate/internal/fraud"
	"github.com/votegate/votegate/internal/ledger"
)

// BoothTurnout is the per-booth slice of the dashboard.
type BoothTurnout struct {
	BoothID  string  `json:"booth_id"`
	Location string  `json:"location"`
	Voters   int     `json:"registered_voters"`
	Votes    int     `json:"votes_cast"`
	Turnout  float64 `json:"turnout"`
}

// Dashboard is the stats snapshot for the operator dashboard.
type Dashboard struct {
	TotalBooths   int            `json:"total_booths"`
	TotalVoters   int            `json:"total_voters"`
	VotesCast     int            `json:"votes_cast"`
	FraudAttempts int            `json:"fraud_attempts"`
	RecentVotes   int            `json:"recent_votes"`
	Booths        []BoothTurnout `json:"booths"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

// Service computes dashboard snapshots.
type Service struct {
	directory directory.Repository
	ledger    ledger.Ledger
	monitor   fraud.Monitor

	recentWindow time.Duration
}

// NewService wires the reporting service. recentWindow bounds the
// recent-votes counter; zero defaults to one hour.
func NewService(repo directory.Repository, led ledger.Ledger, monitor fraud.Monitor, recentWindow time.Duration) *Service {
	if recentWindow <= 0 {
		recentWindow = time.Hour
	}
	return &Service{directory: repo, ledger: led, monitor: monitor, recentWindow: recentWindow}
}

// Dashboard assembles the current stats snapshot.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	booths, err := s.directory.ListBooths(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	now := time.Now().UTC()
	out := Dashboard{
		TotalBooths: len(booths),
		GeneratedAt: now,
	}

	for _, booth := range booths {
		voters, err := s.directory.ListVotersByBooth(ctx, booth.ID)
		if err != nil {
			return Dashboard{}, err
		}
		votes, err := s.ledger.CountSteps(ctx, booth.ID, ledger.StepVoteCast, time.Time{})
		if err != nil {
			return Dashboard{}, err
		}
		recent, err := s.ledger.CountSteps(ctx, booth.ID, ledger.StepVoteCast, now.Add(-s.recentWindow))
		if err != nil {
			return Dashboard{}, err
		}

		turnout := BoothTurnout{
			BoothID:  booth.ID,
			Location: booth.Location,
			Voters:   len(voters),
			Votes:    votes,
		}
		if turnout.Voters > 0 {
			turnout.Turnout = float64(turnout.Votes) / float64(turnout.Voters)
		}
		out.Booths = append(out.Booths, turnout)

		out.TotalVoters += turnout.Voters
		out.VotesCast += votes
		out.RecentVotes += recent
	}

	fraudCount, err := s.monitor.Count(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	out.FraudAttempts = fraudCount
	return out, nil
}
