package client

import (
	"context"
	"testing"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/voting/api"
	"github.com/axiomesh/voting/core"
	"github.com/axiomesh/voting/repo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0xff00000000000000000000000000000000000001")
	voterA = common.HexToAddress("0x110000000000000000000000000000000000ffff")
	voterB = common.HexToAddress("0x220000000000000000000000000000000000ffff")
	voterC = common.HexToAddress("0x330000000000000000000000000000000000ffff")
)

func newServer(t *testing.T) *api.Server {
	t.Helper()

	logger := log.New()
	journal, err := core.NewJournal(nil, logger)
	require.Nil(t, err)
	t.Cleanup(func() {
		journal.Close()
	})

	config := repo.DefaultConfig(t.TempDir()).RPC
	config.Listen = "127.0.0.1:0"
	s, err := api.NewServer(config, core.New(owner, core.WithEmitter(journal)), journal, logger)
	require.Nil(t, err)
	return s
}

func TestEndToEnd(t *testing.T) {
	s := newServer(t)
	c := New(rpc.DialInProc(s.RPC()))
	defer c.Close()
	ctx := context.Background()

	admin := c.As(owner)
	a, b, cc := c.As(voterA), c.As(voterB), c.As(voterC)

	got, err := c.Owner(ctx)
	require.Nil(t, err)
	assert.Equal(t, owner, got)

	for _, v := range []common.Address{voterA, voterB, voterC} {
		require.Nil(t, admin.AddVoter(ctx, v))
	}
	assert.ErrorIs(t, admin.AddVoter(ctx, voterA), core.ErrAlreadyRegistered)
	assert.ErrorIs(t, a.AddVoter(ctx, owner), core.ErrUnauthorized)

	require.Nil(t, admin.StartProposalsRegistering(ctx))
	for i, voter := range []*Client{a, b, cc} {
		id, err := voter.AddProposal(ctx, []string{"P1", "P2", "P3"}[i])
		require.Nil(t, err)
		assert.Equal(t, uint64(i+1), id)
	}
	_, err = a.AddProposal(ctx, "")
	assert.ErrorIs(t, err, core.ErrEmptyProposal)
	_, err = admin.GetOneProposal(ctx, 1)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	require.Nil(t, admin.EndProposalsRegistering(ctx))
	require.Nil(t, admin.StartVotingSession(ctx))
	require.Nil(t, a.SetVote(ctx, 1))
	require.Nil(t, b.SetVote(ctx, 2))
	require.Nil(t, cc.SetVote(ctx, 2))
	assert.ErrorIs(t, cc.SetVote(ctx, 1), core.ErrAlreadyVoted)
	assert.ErrorIs(t, a.SetVote(ctx, 7), core.ErrAlreadyVoted)

	v, err := a.GetVoter(ctx, voterB)
	require.Nil(t, err)
	assert.Equal(t, core.Voter{IsRegistered: true, HasVoted: true, VotedProposalID: 2}, v)

	_, err = c.WinningProposalID(ctx)
	assert.ErrorIs(t, err, core.ErrPhaseMismatch)

	require.Nil(t, admin.EndVotingSession(ctx))
	winner, err := admin.TallyVotes(ctx)
	require.Nil(t, err)
	assert.Equal(t, "P2", winner)

	_, err = admin.TallyVotes(ctx)
	assert.ErrorIs(t, err, core.ErrPhaseMismatch)

	id, err := c.WinningProposalID(ctx)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), id)

	p, err := b.GetOneProposal(ctx, id)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), p.VoteCount)

	status, err := c.WorkflowStatus(ctx)
	require.Nil(t, err)
	assert.Equal(t, core.VotesTallied, status)

	logs, err := c.GetLogs(ctx, api.LogFilter{Topics: [][]common.Hash{{core.VotedTopic}}})
	require.Nil(t, err)
	assert.Len(t, logs, 3)
}

func TestNotFound(t *testing.T) {
	s := newServer(t)
	c := New(rpc.DialInProc(s.RPC()))
	defer c.Close()
	ctx := context.Background()

	require.Nil(t, c.As(owner).AddVoter(ctx, voterA))
	require.Nil(t, c.As(owner).StartProposalsRegistering(ctx))
	require.Nil(t, c.As(owner).EndProposalsRegistering(ctx))
	require.Nil(t, c.As(owner).StartVotingSession(ctx))

	a := c.As(voterA)
	assert.ErrorIs(t, a.SetVote(ctx, 1), core.ErrNotFound)
	_, err := a.GetOneProposal(ctx, 1)
	assert.ErrorIs(t, err, core.ErrNotFound)

	count, err := a.ProposalCount(ctx)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSubscribeLogs(t *testing.T) {
	s := newServer(t)
	c := New(rpc.DialInProc(s.RPC()))
	defer c.Close()
	ctx := context.Background()

	ch := make(chan types.Log, 16)
	sub, err := c.SubscribeLogs(ctx, api.LogFilter{Topics: [][]common.Hash{{core.WorkflowStatusChangeTopic}}}, ch)
	require.Nil(t, err)
	defer sub.Unsubscribe()

	require.Nil(t, c.As(owner).AddVoter(ctx, voterA))
	require.Nil(t, c.As(owner).StartProposalsRegistering(ctx))

	select {
	case l := <-ch:
		ev, err := core.DecodeLog(&l)
		require.Nil(t, err)
		assert.Equal(t, &core.WorkflowStatusChange{
			PreviousStatus: core.RegisteringVoters,
			NewStatus:      core.ProposalsRegistrationStarted,
		}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no log received")
	}
}

func TestDial(t *testing.T) {
	s := newServer(t)
	require.Nil(t, s.Start())
	defer s.Stop(context.Background())

	ctx := context.Background()
	c, err := Dial(ctx, "http://"+s.Addr(), 3, 10*time.Millisecond)
	require.Nil(t, err)
	defer c.Close()

	addr, err := c.Address(ctx)
	require.Nil(t, err)
	assert.Equal(t, core.New(owner).Address(), addr)

	_, err = Dial(ctx, "http://127.0.0.1:1", 2, 10*time.Millisecond)
	assert.NotNil(t, err)
}
