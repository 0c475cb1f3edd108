package report

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/votegate/votegate/internal/directory"
	"github.com/votegate/votegate/internal/fraud"
	"github.com/votegate/votegate/internal/ledger"
)

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	repo := directory.NewMemoryRepository()
	led := ledger.NewInMemory()
	monitor := fraud.NewInMemory()

	for _, booth := range []directory.Booth{
		{ID: "001", Location: "Community Hall"},
		{ID: "002", Location: "School Annex"},
	} {
		if err := repo.CreateBooth(ctx, booth); err != nil {
			t.Fatalf("create booth: %v", err)
		}
	}

	voters := []directory.Voter{
		{VoterID: "VID001", UUID: uuid.NewString(), Name: "Asha Verma", BoothID: "001"},
		{VoterID: "VID002", UUID: uuid.NewString(), Name: "Ravi Iyer", BoothID: "001"},
		{VoterID: "VID003", UUID: uuid.NewString(), Name: "Meera Pillai", BoothID: "002"},
	}
	for _, v := range voters {
		if err := repo.CreateVoter(ctx, v); err != nil {
			t.Fatalf("create voter: %v", err)
		}
	}

	// One completed vote at booth 001, recorded just now.
	for _, step := range []ledger.Step{ledger.StepIDVerified, ledger.StepFaceVerified, ledger.StepIrisVerified, ledger.StepVoteCast} {
		if _, err := led.Append(ctx, ledger.Entry{
			VoterUUID: voters[0].UUID,
			VoterID:   voters[0].VoterID,
			BoothID:   "001",
			Step:      step,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("append %s: %v", step, err)
		}
	}

	if _, err := monitor.Record(ctx, fraud.KindDuplicateVote, "VID002", "001", "second cast attempt"); err != nil {
		t.Fatalf("record fraud: %v", err)
	}

	svc := NewService(repo, led, monitor, time.Hour)
	dash, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	if dash.TotalBooths != 2 || dash.TotalVoters != 3 {
		t.Fatalf("booths=%d voters=%d, want 2 and 3", dash.TotalBooths, dash.TotalVoters)
	}
	if dash.VotesCast != 1 || dash.RecentVotes != 1 {
		t.Fatalf("votes=%d recent=%d, want 1 and 1", dash.VotesCast, dash.RecentVotes)
	}
	if dash.FraudAttempts != 1 {
		t.Fatalf("fraud attempts = %d, want 1", dash.FraudAttempts)
	}

	if len(dash.Booths) != 2 {
		t.Fatalf("booth slices = %d, want 2", len(dash.Booths))
	}
	first := dash.Booths[0]
	if first.BoothID != "001" || first.Votes != 1 || first.Voters != 2 {
		t.Fatalf("booth 001 slice: %+v", first)
	}
	if math.Abs(first.Turnout-0.5) > 1e-9 {
		t.Fatalf("booth 001 turnout = %v, want 0.5", first.Turnout)
	}
	second := dash.Booths[1]
	if second.Votes != 0 || second.Turnout != 0 {
		t.Fatalf("booth 002 slice: %+v", second)
	}
}
