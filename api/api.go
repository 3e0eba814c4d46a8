package api

import (
	"context"

	"github.com/axiomesh/voting/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const Namespace = "voting"

// LogFilter selects session logs. Zero block bounds are open, topics follow
// the ethereum filter rules.
type LogFilter struct {
	FromBlock uint64          `json:"fromBlock"`
	ToBlock   uint64          `json:"toBlock"`
	Topics    [][]common.Hash `json:"topics"`
}

type ProposalResult struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	VoteCount   uint64 `json:"voteCount"`
}

// VotingAPI exposes one session over JSON-RPC. Every call that depends on
// the caller takes its identity as first argument.
type VotingAPI struct {
	session *core.Session
	logs    core.Client
	logger  logrus.FieldLogger
}

func NewVotingAPI(session *core.Session, logs core.Client, logger logrus.FieldLogger) *VotingAPI {
	return &VotingAPI{
		session: session,
		logs:    logs,
		logger:  logger,
	}
}

func (api *VotingAPI) Owner() common.Address {
	return api.session.Owner()
}

func (api *VotingAPI) Address() common.Address {
	return api.session.Address()
}

func (api *VotingAPI) WorkflowStatus() core.WorkflowStatus {
	return api.session.WorkflowStatus()
}

func (api *VotingAPI) WinningProposalID() (uint64, error) {
	return api.session.WinningProposalID()
}

func (api *VotingAPI) GetVoter(from, voter common.Address) (core.Voter, error) {
	return api.session.GetVoter(from, voter)
}

func (api *VotingAPI) GetOneProposal(from common.Address, id uint64) (*ProposalResult, error) {
	p, err := api.session.GetOneProposal(from, id)
	if err != nil {
		return nil, err
	}
	return &ProposalResult{ID: id, Description: p.Description, VoteCount: p.VoteCount}, nil
}

func (api *VotingAPI) ProposalCount(from common.Address) (uint64, error) {
	return api.session.ProposalCount(from)
}

func (api *VotingAPI) AddVoter(from, voter common.Address) error {
	return api.session.AddVoter(from, voter)
}

func (api *VotingAPI) StartProposalsRegistering(from common.Address) error {
	return api.session.StartProposalsRegistering(from)
}

func (api *VotingAPI) AddProposal(from common.Address, description string) (uint64, error) {
	return api.session.AddProposal(from, description)
}

func (api *VotingAPI) EndProposalsRegistering(from common.Address) error {
	return api.session.EndProposalsRegistering(from)
}

func (api *VotingAPI) StartVotingSession(from common.Address) error {
	return api.session.StartVotingSession(from)
}

func (api *VotingAPI) SetVote(from common.Address, proposalID uint64) error {
	return api.session.SetVote(from, proposalID)
}

func (api *VotingAPI) EndVotingSession(from common.Address) error {
	return api.session.EndVotingSession(from)
}

func (api *VotingAPI) TallyVotes(from common.Address) (string, error) {
	return api.session.TallyVotes(from)
}

func (api *VotingAPI) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	return api.logs.FilterLogs(ctx, api.query(filter))
}

// Logs streams the session logs emitted from now on. Only available over
// websocket or in-process connections.
func (api *VotingAPI) Logs(ctx context.Context, filter LogFilter) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	logs := make(chan types.Log, core.LogChanMaxSize)
	// the call context ends with the request, the subscription outlives it
	sub, err := api.logs.SubscribeFilterLogs(context.Background(), api.query(filter), logs)
	if err != nil {
		return nil, err
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if err := notifier.Notify(rpcSub.ID, l); err != nil {
					api.logger.Debugf("notify log subscription %s: %s", rpcSub.ID, err)
				}
			case err := <-sub.Err():
				if err != nil {
					api.logger.Warnf("log subscription %s: %s", rpcSub.ID, err)
				}
				return
			case <-rpcSub.Err():
				return
			}
		}
	}()

	return rpcSub, nil
}

func (api *VotingAPI) query(filter LogFilter) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{api.session.Address()},
		Topics:    filter.Topics,
	}
	if filter.FromBlock > 0 {
		q.FromBlock = newBlock(filter.FromBlock)
	}
	if filter.ToBlock > 0 {
		q.ToBlock = newBlock(filter.ToBlock)
	}
	return q
}

// APIs returns the rpc services serving session.
func APIs(session *core.Session, logs core.Client, logger logrus.FieldLogger) []rpc.API {
	return []rpc.API{
		{
			Namespace: Namespace,
			Service:   NewVotingAPI(session, logs, logger),
		},
	}
}
