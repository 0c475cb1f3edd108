package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu     sync.RWMutex
	voters map[string]*Voter // keyed by voter ID
	byUUID map[string]*Voter
	booths map[string]Booth
}

// NewMemoryRepository builds an in-memory directory for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		voters: make(map[string]*Voter),
		byUUID: make(map[string]*Voter),
		booths: make(map[string]Booth),
	}
}

func (r *memoryRepository) CreateBooth(_ context.Context, booth Booth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.booths[booth.ID] = booth
	return nil
}

func (r *memoryRepository) CreateVoter(_ context.Context, voter Voter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.voters[voter.VoterID]; exists {
		return ErrVoterExists
	}
	stored := voter
	r.voters[voter.VoterID] = &stored
	r.byUUID[voter.UUID] = &stored
	return nil
}

func (r *memoryRepository) FindVoter(_ context.Context, voterID string) (Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	voter, ok := r.voters[voterID]
	if !ok {
		return Voter{}, ErrVoterNotFound
	}
	return *voter, nil
}

func (r *memoryRepository) FindVoterByUUID(_ context.Context, uuid string) (Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	voter, ok := r.byUUID[uuid]
	if !ok {
		return Voter{}, ErrVoterNotFound
	}
	return *voter, nil
}

func (r *memoryRepository) FindBooth(_ context.Context, boothID string) (Booth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	booth, ok := r.booths[boothID]
	if !ok {
		return Booth{}, ErrBoothNotFound
	}
	return booth, nil
}

func (r *memoryRepository) ListBooths(_ context.Context) ([]Booth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	booths := make([]Booth, 0, len(r.booths))
	for _, booth := range r.booths {
		booths = append(booths, booth)
	}
	sort.Slice(booths, func(i, j int) bool { return booths[i].ID < booths[j].ID })
	return booths, nil
}

func (r *memoryRepository) ListVotersByBooth(_ context.Context, boothID string) ([]Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var voters []Voter
	for _, voter := range r.voters {
		if voter.BoothID == boothID {
			voters = append(voters, *voter)
		}
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].VoterID < voters[j].VoterID })
	return voters, nil
}

func (r *memoryRepository) MarkVoted(_ context.Context, uuid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	voter, ok := r.byUUID[uuid]
	if !ok {
		return ErrVoterNotFound
	}
	if voter.HasVoted {
		return ErrAlreadyVoted
	}
	voted := at.UTC()
	voter.HasVoted = true
	voter.VotedAt = &voted
	return nil
}

func (r *memoryRepository) StoreFaceTemplate(_ context.Context, uuid string, template []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	voter, ok := r.byUUID[uuid]
	if !ok {
		return ErrVoterNotFound
	}
	if voter.FaceTemplate == nil {
		voter.FaceTemplate = template
	}
	return nil
}

func (r *memoryRepository) StoreIrisTemplate(_ context.Context, uuid string, template []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	voter, ok := r.byUUID[uuid]
	if !ok {
		return ErrVoterNotFound
	}
	if voter.IrisTemplate == nil {
		voter.IrisTemplate = template
	}
	return nil
}
