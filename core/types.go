package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type WorkflowStatus uint8

const (
	// RegisteringVoters is the initial phase, the administrator whitelists voters
	RegisteringVoters WorkflowStatus = iota

	// ProposalsRegistrationStarted lets registered voters submit proposals
	ProposalsRegistrationStarted

	ProposalsRegistrationEnded

	// VotingSessionStarted lets every registered voter cast exactly one vote
	VotingSessionStarted

	VotingSessionEnded

	// VotesTallied is terminal, the winning proposal is known
	VotesTallied
)

var workflowStatusNames = [...]string{
	RegisteringVoters:            "RegisteringVoters",
	ProposalsRegistrationStarted: "ProposalsRegistrationStarted",
	ProposalsRegistrationEnded:   "ProposalsRegistrationEnded",
	VotingSessionStarted:         "VotingSessionStarted",
	VotingSessionEnded:           "VotingSessionEnded",
	VotesTallied:                 "VotesTallied",
}

func (s WorkflowStatus) String() string {
	if int(s) < len(workflowStatusNames) {
		return workflowStatusNames[s]
	}
	return fmt.Sprintf("WorkflowStatus(%d)", uint8(s))
}

// Next returns the phase following s. The second return is false for VotesTallied.
func (s WorkflowStatus) Next() (WorkflowStatus, bool) {
	if s >= VotesTallied {
		return s, false
	}
	return s + 1, true
}

func (s WorkflowStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(workflowStatusNames) {
		return nil, fmt.Errorf("unknown workflow status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *WorkflowStatus) UnmarshalText(text []byte) error {
	status, err := ParseWorkflowStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

func ParseWorkflowStatus(name string) (WorkflowStatus, error) {
	for i, n := range workflowStatusNames {
		if n == name {
			return WorkflowStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown workflow status %q", name)
}

type Voter struct {
	IsRegistered bool `json:"isRegistered"`
	HasVoted     bool `json:"hasVoted"`

	// VotedProposalID is only meaningful when HasVoted is true
	VotedProposalID uint64 `json:"votedProposalId"`
}

type Proposal struct {
	Description string `json:"description"`
	VoteCount   uint64 `json:"voteCount"`
}

// GenesisDescription names the proposal created at index 0 when proposal registration opens.
const GenesisDescription = "GENESIS"

// Event payloads, JSON encoded into the Data field of the emitted logs.

// OwnershipTransferred is the creation log of a session, PreviousOwner is
// zero.
type OwnershipTransferred struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
}

type VoterRegistered struct {
	Voter common.Address `json:"voterAddress"`
}

type WorkflowStatusChange struct {
	PreviousStatus WorkflowStatus `json:"previousStatus"`
	NewStatus      WorkflowStatus `json:"newStatus"`
}

type ProposalRegistered struct {
	ProposalID  uint64         `json:"proposalId"`
	Proposer    common.Address `json:"proposer"`
	Description string         `json:"description"`
}

type Voted struct {
	Voter      common.Address `json:"voter"`
	ProposalID uint64         `json:"proposalId"`
}
