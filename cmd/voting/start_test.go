package main

import (
	"context"
	"testing"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/voting/core"
	"github.com/axiomesh/voting/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *repo.Config {
	t.Helper()

	cfg := repo.DefaultConfig(t.TempDir())
	cfg.RPC.Listen = "127.0.0.1:0"
	return cfg
}

func TestNewNode(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	n, err := newNode(ctx, cfg, log.New())
	require.Nil(t, err)
	assert.Equal(t, sessionAddress(cfg), n.session.Address())
	assert.Equal(t, cfg.AdministratorAddress(), n.session.Owner())
	require.Nil(t, n.session.AddVoter(cfg.AdministratorAddress(), cfg.DeployerAddress()))
	require.Nil(t, n.Stop())

	n, err = newNode(ctx, cfg, log.New())
	require.Nil(t, err)
	v, err := n.session.GetVoter(cfg.DeployerAddress(), cfg.DeployerAddress())
	require.Nil(t, err)
	assert.True(t, v.IsRegistered)
	require.Nil(t, n.Stop())
}

func TestNewNodeReleasesJournal(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	n, err := newNode(ctx, cfg, log.New())
	require.Nil(t, err)
	require.Nil(t, n.Stop())

	// the round was created by the deployer, another administrator is refused
	cfg.Session.Administrator = "0x000000000000000000000000000000000000dead"
	_, err = newNode(ctx, cfg, log.New())
	assert.ErrorIs(t, err, core.ErrAdministratorChanged)

	db, err := leveldb.New(cfg.JournalPath())
	require.Nil(t, err)
	assert.Nil(t, db.Close())
}
