package client

import (
	"context"
	"errors"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/voting/api"
	"github.com/axiomesh/voting/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client calls a voting daemon on behalf of one identity.
type Client struct {
	c    *rpc.Client
	from common.Address
}

// Dial connects to url, retrying with a fibonacci backoff until the daemon
// answers or limit attempts failed.
func Dial(ctx context.Context, url string, limit uint, factor time.Duration) (*Client, error) {
	var c *rpc.Client

	action := func(attempt uint) error {
		var err error
		c, err = rpc.DialContext(ctx, url)
		if err != nil {
			return err
		}

		// http dials lazily, probe the daemon
		var owner common.Address
		if err := c.CallContext(ctx, &owner, method("owner")); err != nil {
			c.Close()
			return err
		}
		return nil
	}

	if err := retry.Retry(action, strategy.Limit(limit), strategy.Backoff(backoff.Fibonacci(factor))); err != nil {
		return nil, err
	}

	return New(c), nil
}

func New(c *rpc.Client) *Client {
	return &Client{c: c}
}

// As returns a client sharing the connection that calls as from.
func (c *Client) As(from common.Address) *Client {
	return &Client{c: c.c, from: from}
}

func (c *Client) From() common.Address {
	return c.from
}

func (c *Client) Close() {
	c.c.Close()
}

func method(name string) string {
	return api.Namespace + "_" + name
}

func (c *Client) call(ctx context.Context, result any, name string, args ...any) error {
	return convertErr(c.c.CallContext(ctx, result, method(name), args...))
}

// convertErr restores session errors so callers can match them with errors.Is.
func convertErr(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if e, ok := core.ErrorFromCode(rpcErr.ErrorCode(), rpcErr.Error()); ok {
			return e
		}
	}
	return err
}

func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	var owner common.Address
	err := c.call(ctx, &owner, "owner")
	return owner, err
}

func (c *Client) Address(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := c.call(ctx, &addr, "address")
	return addr, err
}

func (c *Client) WorkflowStatus(ctx context.Context) (core.WorkflowStatus, error) {
	var status core.WorkflowStatus
	err := c.call(ctx, &status, "workflowStatus")
	return status, err
}

func (c *Client) WinningProposalID(ctx context.Context) (uint64, error) {
	var id uint64
	err := c.call(ctx, &id, "winningProposalID")
	return id, err
}

func (c *Client) GetVoter(ctx context.Context, voter common.Address) (core.Voter, error) {
	var v core.Voter
	err := c.call(ctx, &v, "getVoter", c.from, voter)
	return v, err
}

func (c *Client) GetOneProposal(ctx context.Context, id uint64) (*api.ProposalResult, error) {
	var p api.ProposalResult
	if err := c.call(ctx, &p, "getOneProposal", c.from, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ProposalCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := c.call(ctx, &count, "proposalCount", c.from)
	return count, err
}

func (c *Client) AddVoter(ctx context.Context, voter common.Address) error {
	return c.call(ctx, nil, "addVoter", c.from, voter)
}

func (c *Client) StartProposalsRegistering(ctx context.Context) error {
	return c.call(ctx, nil, "startProposalsRegistering", c.from)
}

func (c *Client) AddProposal(ctx context.Context, description string) (uint64, error) {
	var id uint64
	err := c.call(ctx, &id, "addProposal", c.from, description)
	return id, err
}

func (c *Client) EndProposalsRegistering(ctx context.Context) error {
	return c.call(ctx, nil, "endProposalsRegistering", c.from)
}

func (c *Client) StartVotingSession(ctx context.Context) error {
	return c.call(ctx, nil, "startVotingSession", c.from)
}

func (c *Client) SetVote(ctx context.Context, proposalID uint64) error {
	return c.call(ctx, nil, "setVote", c.from, proposalID)
}

func (c *Client) EndVotingSession(ctx context.Context) error {
	return c.call(ctx, nil, "endVotingSession", c.from)
}

func (c *Client) TallyVotes(ctx context.Context) (string, error) {
	var winner string
	err := c.call(ctx, &winner, "tallyVotes", c.from)
	return winner, err
}

func (c *Client) GetLogs(ctx context.Context, filter api.LogFilter) ([]types.Log, error) {
	var logs []types.Log
	err := c.call(ctx, &logs, "getLogs", filter)
	return logs, err
}

// SubscribeLogs needs a websocket or in-process connection.
func (c *Client) SubscribeLogs(ctx context.Context, filter api.LogFilter, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := c.c.Subscribe(ctx, api.Namespace, ch, "logs", filter)
	if err != nil {
		return nil, convertErr(err)
	}
	return sub, nil
}
