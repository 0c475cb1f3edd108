package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Seed loads a demo booth and a small electoral roll. Used in development
// mode with the in-memory repository so every verification step can be
// exercised without a provisioned database.
func Seed(ctx context.Context, repo Repository) error {
	now := time.Now().UTC()

	if err := repo.CreateBooth(ctx, Booth{ID: "001", Location: "Community Hall, Ward 4", Capacity: 1000, CreatedAt: now}); err != nil {
		return err
	}

	voters := []Voter{
		{VoterID: "VID001", Name: "Asha Verma", Age: 34, Address: "12 Lakeview Road", Phone: "9890001001", BoothID: "001"},
		{VoterID: "VID002", Name: "Rahul Menon", Age: 41, Address: "7 Temple Street", Phone: "9890001002", BoothID: "001"},
		{VoterID: "VID003", Name: "Meera Pillai", Age: 27, Address: "221 Garden Lane", Phone: "9890001003", BoothID: "001"},
	}

	for _, voter := range voters {
		voter.UUID = uuid.NewString()
		voter.CreatedAt = now
		if err := repo.CreateVoter(ctx, voter); err != nil {
			return err
		}
	}
	return nil
}
