package directory

import "time"

// Voter is a registered elector assigned to a polling booth. The stored
// face and iris templates are opaque blobs owned by the biometric matchers;
// they are created lazily on a voter's first successful capture when the
// roll was loaded without biometric data.
type Voter struct {
	VoterID string
	UUID    string
	Name    string
	Age     int
	Address string
	Phone   string
	BoothID string

	FaceTemplate []byte
	IrisTemplate []byte

	HasVoted  bool
	VotedAt   *time.Time
	CreatedAt time.Time
}

// Booth is a polling station. Read-only to the verification core.
type Booth struct {
	ID        string
	Location  string
	Capacity  int
	CreatedAt time.Time
}
