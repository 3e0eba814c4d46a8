package core

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signature hashes, used as the first topic of every emitted log.
var (
	OwnershipTransferredTopic = crypto.Keccak256Hash([]byte("OwnershipTransferred(address,address)"))
	VoterRegisteredTopic      = crypto.Keccak256Hash([]byte("VoterRegistered(address)"))
	WorkflowStatusChangeTopic = crypto.Keccak256Hash([]byte("WorkflowStatusChange(uint8,uint8)"))
	ProposalRegisteredTopic   = crypto.Keccak256Hash([]byte("ProposalRegistered(uint256)"))
	VotedTopic                = crypto.Keccak256Hash([]byte("Voted(address,uint256)"))
)

// Emitter receives the creation log, then one log per accepted mutation.
// Implementations must not call back into the session.
type Emitter interface {
	Emit(log types.Log)
}

type nopEmitter struct{}

func (nopEmitter) Emit(types.Log) {}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

// EncodeLog builds the log for event, emitted from address.
func EncodeLog(address common.Address, event any) (types.Log, error) {
	var topics []common.Hash
	switch e := event.(type) {
	case *OwnershipTransferred:
		topics = []common.Hash{OwnershipTransferredTopic, addressTopic(e.PreviousOwner), addressTopic(e.NewOwner)}
	case *VoterRegistered:
		topics = []common.Hash{VoterRegisteredTopic, addressTopic(e.Voter)}
	case *WorkflowStatusChange:
		topics = []common.Hash{WorkflowStatusChangeTopic}
	case *ProposalRegistered:
		topics = []common.Hash{ProposalRegisteredTopic, idTopic(e.ProposalID)}
	case *Voted:
		topics = []common.Hash{VotedTopic, addressTopic(e.Voter)}
	default:
		return types.Log{}, fmt.Errorf("unsupported event type %T", event)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return types.Log{}, err
	}

	return types.Log{
		Address: address,
		Topics:  topics,
		Data:    data,
	}, nil
}

// DecodeLog returns the event carried by log, one of *OwnershipTransferred,
// *VoterRegistered, *WorkflowStatusChange, *ProposalRegistered or *Voted.
func DecodeLog(log *types.Log) (any, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %d has no topics", log.Index)
	}

	var event any
	switch log.Topics[0] {
	case OwnershipTransferredTopic:
		event = &OwnershipTransferred{}
	case VoterRegisteredTopic:
		event = &VoterRegistered{}
	case WorkflowStatusChangeTopic:
		event = &WorkflowStatusChange{}
	case ProposalRegisteredTopic:
		event = &ProposalRegistered{}
	case VotedTopic:
		event = &Voted{}
	default:
		return nil, fmt.Errorf("unknown event topic %s", log.Topics[0].Hex())
	}

	if err := json.Unmarshal(log.Data, event); err != nil {
		return nil, fmt.Errorf("unmarshal log %d: %w", log.Index, err)
	}
	return event, nil
}
