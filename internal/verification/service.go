package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/votegate/votegate/internal/alert"
	"github.com/votegate/votegate/internal/biometric"
	"github.com/votegate/votegate/internal/directory"
	"github.com/votegate/votegate/internal/fraud"
	"github.com/votegate/votegate/internal/ledger"
)

// Service drives the per-voter verification state machine: it validates
// ordering, applies the decision policy, and commits passed steps to the
// session store and the audit ledger. All work for one voter is serialized
// behind a per-voter lock; unrelated voters never contend.
type Service struct {
	directory directory.Repository
	sessions  SessionStore
	ledger    ledger.Ledger
	monitor   fraud.Monitor
	policy    *Policy
	notifier  alert.Notifier
	logger    *slog.Logger
	committer VoteCommitter

	matcherTimeout time.Duration

	locks keyedLocks
}

// NewService wires the verification core.
func NewService(repo directory.Repository, sessions SessionStore, led ledger.Ledger, monitor fraud.Monitor, policy *Policy, notifier alert.Notifier, logger *slog.Logger, matcherTimeout time.Duration) *Service {
	if matcherTimeout <= 0 {
		matcherTimeout = 10 * time.Second
	}
	return &Service{
		directory:      repo,
		sessions:       sessions,
		ledger:         led,
		monitor:        monitor,
		policy:         policy,
		notifier:       notifier,
		logger:         logger,
		matcherTimeout: matcherTimeout,
	}
}

// WithVoteCommitter installs an atomic committer for the terminal step. The
// in-memory backends cannot fail between the terminal writes and stay
// consistent under the per-voter lock alone, so the committer is only wired
// for the Postgres stores.
func (s *Service) WithVoteCommitter(c VoteCommitter) *Service {
	s.committer = c
	return s
}

// SubmitStepInput carries the evidence for exactly one verification step.
// VoterID and BoothID identify the voter on the ID step; later steps use
// the VoterUUID issued by a successful ID verification.
type SubmitStepInput struct {
	Step      ledger.Step
	VoterID   string
	VoterUUID string
	BoothID   string

	IDCardImage []byte
	FaceImage   []byte
	Liveness    LivenessData
	IrisImage   []byte
}

// StepOutcome reports a successfully committed step.
type StepOutcome struct {
	Voter   directory.Voter
	Session Session
	Entry   ledger.Entry

	// NextStep names the stage the client should drive next:
	// face_verification, iris_verification, evm_access, or complete.
	NextStep string

	OCR  *biometric.ExtractedID
	Face *FaceDecision
	Iris *IrisDecision

	// TransactionID is set on the terminal vote-cast step.
	TransactionID string
}

// SubmitStep runs one step of the state machine. On policy failure the
// session is left exactly where it was, a fraud event is recorded and a
// rejection error is returned; on upstream failure nothing is recorded and
// the caller may retry.
func (s *Service) SubmitStep(ctx context.Context, input SubmitStepInput) (StepOutcome, error) {
	if !input.Step.Valid() {
		return StepOutcome{}, ledger.ErrUnknownStep
	}

	voter, err := s.resolveVoter(ctx, input)
	if err != nil {
		return StepOutcome{}, err
	}

	unlock := s.locks.lock(voter.UUID)
	defer unlock()

	// Re-read under the lock so the voted flag and templates are current.
	voter, err = s.directory.FindVoterByUUID(ctx, voter.UUID)
	if err != nil {
		return StepOutcome{}, mapDirectoryErr(err)
	}

	if input.Step == ledger.StepIDVerified && voter.BoothID != input.BoothID {
		if err := s.recordFraud(ctx, fraud.KindBoothMismatch, voter.VoterID, input.BoothID,
			fmt.Sprintf("voter %s is assigned to booth %s, presented at booth %s", voter.VoterID, voter.BoothID, input.BoothID)); err != nil {
			return StepOutcome{}, err
		}
		return StepOutcome{}, &BoothMismatchError{VoterID: voter.VoterID, BoothID: input.BoothID}
	}

	if voter.HasVoted {
		if err := s.recordFraud(ctx, fraud.KindDuplicateVote, voter.VoterID, voter.BoothID,
			fmt.Sprintf("voter %s attempted step %s after casting their vote", voter.VoterID, input.Step)); err != nil {
			return StepOutcome{}, err
		}
		return StepOutcome{}, ErrAlreadyVoted
	}

	session, err := s.sessions.Get(ctx, voter.UUID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		session = Session{
			VoterUUID: voter.UUID,
			VoterID:   voter.VoterID,
			BoothID:   voter.BoothID,
			StartedAt: time.Now().UTC(),
		}
	case err != nil:
		return StepOutcome{}, err
	}

	expected, ok := session.NextStep()
	if !ok || expected != input.Step {
		if !ok {
			// Terminal session with hasVoted somehow unset; treat as duplicate.
			expected = ledger.StepVoteCast
		}
		if err := s.recordFraud(ctx, fraud.KindOutOfOrderStep, voter.VoterID, session.BoothID,
			fmt.Sprintf("voter %s submitted %s, next required step is %s", voter.VoterID, input.Step, expected)); err != nil {
			return StepOutcome{}, err
		}
		return StepOutcome{}, &OutOfOrderError{Expected: expected, Got: input.Step}
	}

	outcome := StepOutcome{Voter: voter}

	switch input.Step {
	case ledger.StepIDVerified:
		err = s.evaluateID(ctx, voter, input, &outcome)
	case ledger.StepFaceVerified:
		err = s.evaluateFace(ctx, &voter, input, &outcome)
	case ledger.StepIrisVerified:
		err = s.evaluateIris(ctx, &voter, input, &outcome, &session)
	case ledger.StepVoteCast:
		// Ordering already guarantees all three prior flags are set.
	}
	if err != nil {
		return StepOutcome{}, err
	}

	return s.commit(ctx, voter, session, input.Step, outcome)
}

// commit advances the session flag, appends the ledger entry and persists
// the session. Runs under the per-voter lock, so the check-then-write pair
// is indivisible per voter. The terminal step goes through the installed
// VoteCommitter when present, so its three writes land as one.
func (s *Service) commit(ctx context.Context, voter directory.Voter, session Session, step ledger.Step, outcome StepOutcome) (StepOutcome, error) {
	now := time.Now().UTC()

	switch step {
	case ledger.StepIDVerified:
		session.IDVerified = true
		outcome.NextStep = "face_verification"
	case ledger.StepFaceVerified:
		session.FaceVerified = true
		outcome.NextStep = "iris_verification"
	case ledger.StepIrisVerified:
		session.IrisVerified = true
		session.CompletedAt = &now
		outcome.NextStep = "evm_access"
	case ledger.StepVoteCast:
		session.VoteCast = true
		session.VoteCastAt = &now
		outcome.NextStep = "complete"
	}

	pending := ledger.Entry{
		VoterUUID: voter.UUID,
		VoterID:   voter.VoterID,
		BoothID:   session.BoothID,
		Step:      step,
		Timestamp: now,
	}

	var entry ledger.Entry
	var err error
	if step == ledger.StepVoteCast && s.committer != nil {
		entry, err = s.committer.CommitVote(ctx, pending, session)
	} else {
		entry, err = s.commitSequential(ctx, pending, voter, session, step, now)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateVoteCast) {
			// Another terminal already landed; the pre-check under the lock
			// rules this out within one process, not across processes.
			return StepOutcome{}, ErrAlreadyVoted
		}
		return StepOutcome{}, mapDirectoryErr(err)
	}

	if step == ledger.StepVoteCast {
		outcome.TransactionID = fmt.Sprintf("tx_%d_%s", now.Unix(), shortUUID(voter.UUID))
	}

	outcome.Session = session
	outcome.Entry = entry

	s.logger.Info("verification step committed",
		"voter_id", voter.VoterID,
		"booth_id", session.BoothID,
		"step", string(step),
		"sequence", entry.Sequence,
		"ledger_hash", entry.PayloadHash,
	)
	return outcome, nil
}

// commitSequential writes the ledger entry, voter flag and session one after
// another. The in-memory backends cannot fail between these writes, so the
// per-voter lock alone keeps them consistent; Postgres deployments install a
// VoteCommitter instead.
func (s *Service) commitSequential(ctx context.Context, pending ledger.Entry, voter directory.Voter, session Session, step ledger.Step, now time.Time) (ledger.Entry, error) {
	entry, err := s.ledger.Append(ctx, pending)
	if err != nil {
		return ledger.Entry{}, err
	}
	if step == ledger.StepVoteCast {
		if err := s.directory.MarkVoted(ctx, voter.UUID, now); err != nil {
			return ledger.Entry{}, err
		}
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (s *Service) evaluateID(ctx context.Context, voter directory.Voter, input SubmitStepInput, outcome *StepOutcome) error {
	// Directory lookup alone suffices when no card image is supplied.
	if len(input.IDCardImage) == 0 {
		return nil
	}

	mctx, cancel := context.WithTimeout(ctx, s.matcherTimeout)
	defer cancel()

	extracted, err := s.policy.ReadDocument(mctx, input.IDCardImage)
	if err != nil {
		if errors.Is(err, biometric.ErrNoVoterID) {
			return ErrMissingEvidence
		}
		return &UpstreamError{Op: "document read", Err: err}
	}
	outcome.OCR = &extracted

	if !strings.EqualFold(extracted.VoterID, voter.VoterID) {
		if err := s.recordFraud(ctx, fraud.KindIdentityMismatch, voter.VoterID, input.BoothID,
			fmt.Sprintf("id card mismatch: extracted %s, claimed %s", extracted.VoterID, voter.VoterID)); err != nil {
			return err
		}
		return &SecurityRejection{Step: ledger.StepIDVerified, Reason: "id card does not match the claimed voter id"}
	}
	return nil
}

func (s *Service) evaluateFace(ctx context.Context, voter *directory.Voter, input SubmitStepInput, outcome *StepOutcome) error {
	if len(input.FaceImage) == 0 {
		return ErrMissingEvidence
	}

	mctx, cancel := context.WithTimeout(ctx, s.matcherTimeout)
	defer cancel()

	decision, err := s.policy.EvaluateFace(mctx, voter.FaceTemplate, input.FaceImage, input.Liveness)
	if err != nil {
		return err
	}
	outcome.Face = &decision

	if !decision.Pass {
		th := s.policy.Thresholds()
		if err := s.recordFraud(ctx, fraud.KindIdentityMismatch, voter.VoterID, voter.BoothID,
			fmt.Sprintf("face verification failed: confidence %.2f (required %.2f), liveness %.2f (required %.2f)",
				decision.Confidence, th.Face, decision.LivenessScore, th.Liveness)); err != nil {
			return err
		}
		return &SecurityRejection{Step: ledger.StepFaceVerified, Reason: "insufficient face confidence or liveness"}
	}

	// First successful capture becomes the reference template, exactly once.
	if decision.Enrolled {
		if err := s.directory.StoreFaceTemplate(ctx, voter.UUID, decision.NewTemplate); err != nil {
			return mapDirectoryErr(err)
		}
		voter.FaceTemplate = decision.NewTemplate
	}
	return nil
}

func (s *Service) evaluateIris(ctx context.Context, voter *directory.Voter, input SubmitStepInput, outcome *StepOutcome, session *Session) error {
	if len(input.IrisImage) == 0 {
		return ErrMissingEvidence
	}

	mctx, cancel := context.WithTimeout(ctx, s.matcherTimeout)
	defer cancel()

	decision, err := s.policy.EvaluateIris(mctx, voter.IrisTemplate, input.IrisImage)
	if err != nil {
		return err
	}
	outcome.Iris = &decision

	if !decision.Pass {
		th := s.policy.Thresholds()
		if err := s.recordFraud(ctx, fraud.KindIdentityMismatch, voter.VoterID, session.BoothID,
			fmt.Sprintf("iris verification failed: confidence %.2f (required above %.2f)",
				decision.Confidence, th.IrisConf)); err != nil {
			return err
		}
		return &SecurityRejection{Step: ledger.StepIrisVerified, Reason: "insufficient iris confidence"}
	}

	if decision.Enrolled {
		if err := s.directory.StoreIrisTemplate(ctx, voter.UUID, decision.NewTemplate); err != nil {
			return mapDirectoryErr(err)
		}
		voter.IrisTemplate = decision.NewTemplate
	}
	return nil
}

func (s *Service) resolveVoter(ctx context.Context, input SubmitStepInput) (directory.Voter, error) {
	if input.Step == ledger.StepIDVerified {
		if input.VoterID == "" || input.BoothID == "" {
			return directory.Voter{}, ErrMissingEvidence
		}
		if _, err := s.directory.FindBooth(ctx, input.BoothID); err != nil {
			return directory.Voter{}, mapDirectoryErr(err)
		}
		voter, err := s.directory.FindVoter(ctx, input.VoterID)
		if err != nil {
			return directory.Voter{}, mapDirectoryErr(err)
		}
		return voter, nil
	}

	if input.VoterUUID == "" {
		return directory.Voter{}, ErrMissingEvidence
	}
	voter, err := s.directory.FindVoterByUUID(ctx, input.VoterUUID)
	if err != nil {
		return directory.Voter{}, mapDirectoryErr(err)
	}
	return voter, nil
}

// Session returns the current session for a voter, if any.
func (s *Service) Session(ctx context.Context, voterUUID string) (Session, error) {
	return s.sessions.Get(ctx, voterUUID)
}

func (s *Service) recordFraud(ctx context.Context, kind fraud.Kind, voterID, boothID, details string) error {
	event, err := s.monitor.Record(ctx, kind, voterID, boothID, details)
	if err != nil {
		// Storage unavailability is fatal to the request, never swallowed.
		return fmt.Errorf("record fraud event: %w", err)
	}
	if s.notifier != nil {
		_ = s.notifier.FraudDetected(ctx, event)
	}
	return nil
}

func mapDirectoryErr(err error) error {
	if errors.Is(err, directory.ErrVoterNotFound) || errors.Is(err, directory.ErrBoothNotFound) {
		return ErrVoterNotFound
	}
	if errors.Is(err, directory.ErrAlreadyVoted) {
		return ErrAlreadyVoted
	}
	return err
}

func shortUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// keyedLocks hands out one mutex per voter UUID.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
