package core

import (
	"sync"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Session is one voting round. Every operation runs under a single lock, so
// the access check, the phase check and the mutation are one atomic step.
type Session struct {
	mu sync.RWMutex

	logger  logrus.FieldLogger
	emitter Emitter

	address       common.Address
	administrator common.Address

	workflowStatus    WorkflowStatus
	voters            map[common.Address]*Voter
	proposals         []Proposal
	winningProposalID uint64
}

type Option func(*Session)

// WithAdministrator sets the administrator, the deployer is used otherwise.
func WithAdministrator(admin common.Address) Option {
	return func(s *Session) {
		s.administrator = admin
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithEmitter(emitter Emitter) Option {
	return func(s *Session) {
		s.emitter = emitter
	}
}

// New creates a session deployed by deployer, in the RegisteringVoters phase.
// Its first log records the administrator.
func New(deployer common.Address, opts ...Option) *Session {
	s := newSession(deployer, opts...)
	s.created()
	return s
}

func newSession(deployer common.Address, opts ...Option) *Session {
	s := &Session{
		logger:         log.New(),
		emitter:        nopEmitter{},
		address:        crypto.CreateAddress(deployer, 0),
		administrator:  deployer,
		workflowStatus: RegisteringVoters,
		voters:         make(map[common.Address]*Voter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address identifies the session in the logs it emits.
func (s *Session) Address() common.Address {
	return s.address
}

func (s *Session) Owner() common.Address {
	return s.administrator
}

func (s *Session) WorkflowStatus() WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.workflowStatus
}

// WinningProposalID is readable by anyone once the votes are tallied.
func (s *Session) WinningProposalID() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.workflowStatus != VotesTallied {
		return 0, newError(PhaseMismatch, "votes are not tallied yet")
	}
	return s.winningProposalID, nil
}

// GetVoter returns the record of voter. The caller must be a registered
// voter, not necessarily the one queried.
func (s *Session) GetVoter(caller, voter common.Address) (Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.onlyVoters(caller); err != nil {
		return Voter{}, err
	}
	if v, ok := s.voters[voter]; ok {
		return *v, nil
	}
	return Voter{}, nil
}

func (s *Session) GetOneProposal(caller common.Address, id uint64) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.onlyVoters(caller); err != nil {
		return Proposal{}, err
	}
	if id >= uint64(len(s.proposals)) {
		return Proposal{}, newError(NotFound, "proposal not found")
	}
	return s.proposals[id], nil
}

func (s *Session) ProposalCount(caller common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.onlyVoters(caller); err != nil {
		return 0, err
	}
	return uint64(len(s.proposals)), nil
}

func (s *Session) AddVoter(caller, voter common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyOwner(caller); err != nil {
		return s.reject("add voter", err)
	}
	if s.workflowStatus != RegisteringVoters {
		return s.reject("add voter", newError(PhaseMismatch, "voters registration is not open"))
	}
	if v, ok := s.voters[voter]; ok && v.IsRegistered {
		return s.reject("add voter", newError(AlreadyRegistered, "voter already registered"))
	}

	s.voters[voter] = &Voter{IsRegistered: true}

	s.logger.WithFields(logrus.Fields{"voter": voter.Hex()}).Info("Voter registered")
	s.emit(&VoterRegistered{Voter: voter})
	return nil
}

func (s *Session) AddProposal(caller common.Address, description string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyVoters(caller); err != nil {
		return 0, s.reject("add proposal", err)
	}
	if s.workflowStatus != ProposalsRegistrationStarted {
		return 0, s.reject("add proposal", newError(PhaseMismatch, "proposals are not allowed"))
	}
	if description == "" {
		return 0, s.reject("add proposal", newError(EmptyProposal, "proposal description is empty"))
	}

	id := uint64(len(s.proposals))
	s.proposals = append(s.proposals, Proposal{Description: description})

	s.logger.WithFields(logrus.Fields{"proposal": id, "proposer": caller.Hex()}).Info("Proposal registered")
	s.emit(&ProposalRegistered{ProposalID: id, Proposer: caller, Description: description})
	return id, nil
}

func (s *Session) SetVote(caller common.Address, proposalID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyVoters(caller); err != nil {
		return s.reject("set vote", err)
	}
	if s.workflowStatus != VotingSessionStarted {
		return s.reject("set vote", newError(PhaseMismatch, "voting session is not open"))
	}
	voter := s.voters[caller]
	if voter.HasVoted {
		return s.reject("set vote", newError(AlreadyVoted, "voter has already voted"))
	}
	if proposalID >= uint64(len(s.proposals)) {
		return s.reject("set vote", newError(NotFound, "proposal not found"))
	}

	voter.HasVoted = true
	voter.VotedProposalID = proposalID
	s.proposals[proposalID].VoteCount++

	s.logger.WithFields(logrus.Fields{"voter": caller.Hex(), "proposal": proposalID}).Info("Voted")
	s.emit(&Voted{Voter: caller, ProposalID: proposalID})
	return nil
}

// StartProposalsRegistering opens proposal submission and registers the
// GENESIS proposal at index 0.
func (s *Session) StartProposalsRegistering(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advance(caller, RegisteringVoters, "proposals registration cannot be started now"); err != nil {
		return s.reject("start proposals registering", err)
	}
	s.proposals = append(s.proposals, Proposal{Description: GenesisDescription})
	s.changed(RegisteringVoters)
	return nil
}

func (s *Session) EndProposalsRegistering(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advance(caller, ProposalsRegistrationStarted, "proposals registration is not open"); err != nil {
		return s.reject("end proposals registering", err)
	}
	s.changed(ProposalsRegistrationStarted)
	return nil
}

func (s *Session) StartVotingSession(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advance(caller, ProposalsRegistrationEnded, "proposals registration is not finished"); err != nil {
		return s.reject("start voting session", err)
	}
	s.changed(ProposalsRegistrationEnded)
	return nil
}

func (s *Session) EndVotingSession(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advance(caller, VotingSessionStarted, "voting session is not open"); err != nil {
		return s.reject("end voting session", err)
	}
	s.changed(VotingSessionStarted)
	return nil
}

// TallyVotes picks the proposal with the most votes, the lowest index wins
// a tie, and returns its description.
func (s *Session) TallyVotes(caller common.Address) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advance(caller, VotingSessionEnded, "voting session is not ended"); err != nil {
		return "", s.reject("tally votes", err)
	}

	var winner uint64
	for id := range s.proposals {
		if s.proposals[id].VoteCount > s.proposals[winner].VoteCount {
			winner = uint64(id)
		}
	}
	s.winningProposalID = winner

	s.changed(VotingSessionEnded)
	return s.proposals[winner].Description, nil
}

func (s *Session) onlyOwner(caller common.Address) error {
	if caller != s.administrator {
		return newError(Unauthorized, "caller is not the owner")
	}
	return nil
}

func (s *Session) onlyVoters(caller common.Address) error {
	if v, ok := s.voters[caller]; !ok || !v.IsRegistered {
		return newError(Unauthorized, "You're not a voter")
	}
	return nil
}

// advance checks that caller may move the workflow one step forward from want.
// The status itself is updated by changed.
func (s *Session) advance(caller common.Address, want WorkflowStatus, reason string) error {
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	if s.workflowStatus != want {
		return newError(PhaseMismatch, reason)
	}
	return nil
}

func (s *Session) created() {
	s.logger.WithFields(logrus.Fields{"session": s.address.Hex(), "administrator": s.administrator.Hex()}).Info("Session created")
	s.emit(&OwnershipTransferred{NewOwner: s.administrator})
}

func (s *Session) changed(previous WorkflowStatus) {
	next, _ := previous.Next()
	s.workflowStatus = next

	s.logger.WithFields(logrus.Fields{"previous": previous, "status": next}).Info("Workflow status changed")
	s.emit(&WorkflowStatusChange{PreviousStatus: previous, NewStatus: next})
}

func (s *Session) reject(op string, err error) error {
	s.logger.WithFields(logrus.Fields{"op": op}).Debugf("Rejected: %s", err)
	return err
}

func (s *Session) emit(event any) {
	l, err := EncodeLog(s.address, event)
	if err != nil {
		s.logger.Errorf("encode %T: %s", event, err)
		return
	}
	s.emitter.Emit(l)
}
